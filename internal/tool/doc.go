// Package tool runs external command-line tools (the ncnn upscalers,
// pdftoppm) under a timeout and classifies how they failed.
//
// Every invocation runs in its own process group (a job tree on Windows),
// so timeouts, context cancellation and [Invoker.Terminate] take down the
// tool together with any helpers it spawned. Failures come back as
// [*NotFoundError], [*TimeoutError], [*FailedError] or [ErrTerminated].
package tool
