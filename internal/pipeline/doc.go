// Package pipeline drives a batch of job items through a transform.
//
// A [Runner] owns one batch at a time. It validates the options, then
// processes the items strictly in order on a background goroutine. Per-item
// failures become [job.Result] entries and never abort the batch. Progress
// is reported through an [Observer] as ordered [Snapshot]s, followed by
// exactly one terminal [Summary].
package pipeline
