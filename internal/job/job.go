// Package job defines the unit of work handed to the batch runner: the
// input items, the per-batch options with their schema, and the per-item
// results.
package job

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Item is one unit of work: a single input file, or for stitching a group
// of members. Items are treated as immutable once a batch starts.
type Item struct {
	// Source is the input path, or the group name for explicit selections.
	Source      string
	DisplayName string

	// Members is the explicit member list of a stitch group.
	Members []string

	// Dir marks Source as a folder whose images form one stitch group.
	Dir bool
}

// NewItem returns a file item named after the file's base name.
func NewItem(path string) Item {
	return Item{Source: path, DisplayName: filepath.Base(path)}
}

// Name is DisplayName, falling back to the base name of Source.
func (it Item) Name() string {
	if it.DisplayName != "" {
		return it.DisplayName
	}
	return filepath.Base(it.Source)
}

// Status is the terminal state of one attempted item.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Failure reasons shared by the runner and the transforms.
const (
	ReasonCancelled       = "cancelled"
	ReasonCollision       = "output collision"
	ReasonFileNotFound    = "file not found"
	ReasonConversionError = "conversion_error"
	ReasonNoValidImages   = "no valid images"
	ReasonOutputExists    = "output exists"
	ReasonNotWritable     = "output directory not writable"
)

// Result is the outcome of one attempted item.
type Result struct {
	Item   Item
	Status Status
	Reason string

	// Err is the failure cause; on success it may carry a partial-group error.
	Err error

	OutputPath  string
	InputBytes  int64
	OutputBytes int64

	// SkippedMembers lists stitch members that could not be opened.
	SkippedMembers []string
	Duration       time.Duration
}

// Outcome is what a transform reports for a successful item.
type Outcome struct {
	OutputPath     string
	SkippedMembers []string

	// Partial describes members that were left out; the item still succeeds.
	Partial error
}

// Failure is an item failure with a fixed, user-facing reason.
type Failure struct {
	Reason string
	Err    error
}

// Fail wraps err with a reason string.
func Fail(reason string, err error) error {
	return &Failure{Reason: reason, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Reason
	}
	return f.Reason + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// ReasonOf returns the Failure reason in err's chain, or err's message.
func ReasonOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return err.Error()
}
