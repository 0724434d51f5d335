package tool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrTerminated is returned by an invocation stopped through [Invoker.Terminate].
var ErrTerminated = errors.New("tool terminated")

// NotFoundError means the executable does not exist; nothing was spawned.
type NotFoundError struct {
	Exe string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool not found: %s: %v", e.Exe, e.Err)
	}
	return "tool not found: " + e.Exe
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TimeoutError means the tool was killed after exceeding its deadline.
type TimeoutError struct {
	Exe     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Exe, e.Timeout)
}

// FailedError is a non-zero exit, or exit 0 without the expected output
// (ExitCode 0, Missing set).
type FailedError struct {
	Exe      string
	ExitCode int
	Stderr   string
	Hint     Hint
	Missing  string
}

func (e *FailedError) Error() string {
	var b strings.Builder
	if e.Missing != "" {
		fmt.Fprintf(&b, "%s exited 0 but produced no output %s", e.Exe, e.Missing)
	} else {
		fmt.Fprintf(&b, "%s exited with code %d", e.Exe, e.ExitCode)
	}
	if e.Hint != HintNone {
		b.WriteString(" (" + string(e.Hint) + ")")
	}
	if line := lastLine(e.Stderr); line != "" {
		b.WriteString(": " + line)
	}
	return b.String()
}

// Hint is a best-effort diagnosis of a tool failure from its stderr.
type Hint string

const (
	HintNone             Hint = ""
	HintGPUInit          Hint = "GPU initialisation failed"
	HintModelMissing     Hint = "model files missing"
	HintOutOfMemory      Hint = "out of memory"
	HintUnsupportedInput Hint = "unsupported input"
)

// Stderr classifiers, checked in order by [Classify].
var (
	reGPUInit = regexp.MustCompile(
		`(?i)vkCreateInstance failed|vkEnumeratePhysicalDevices|` +
			`invalid gpu device|no vulkan device|vkCreateDevice failed`)

	reModelMissing = regexp.MustCompile(
		`(?i)fopen .*\.(param|bin) failed|load_param.*failed|load_model.*failed|` +
			`model .*not found`)

	reOutOfMemory = regexp.MustCompile(
		`(?i)out of memory|vkAllocateMemory failed|ErrorOutOfDeviceMemory|bad_alloc`)

	reUnsupportedInput = regexp.MustCompile(
		`(?i)decode image .* failed|unsupported image|image format not supported|` +
			`May not be a PDF file|Couldn't open file`)
)

// Classify maps tool stderr to a Hint. First match wins.
func Classify(stderr string) Hint {
	switch {
	case reGPUInit.MatchString(stderr):
		return HintGPUInit
	case reModelMissing.MatchString(stderr):
		return HintModelMissing
	case reOutOfMemory.MatchString(stderr):
		return HintOutOfMemory
	case reUnsupportedInput.MatchString(stderr):
		return HintUnsupportedInput
	}
	return HintNone
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
