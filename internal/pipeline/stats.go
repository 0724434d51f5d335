package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/pixmaster/internal/job"
)

// Summary is the terminal report of one run. It is delivered exactly once.
type Summary struct {
	RunID uuid.UUID

	Succeeded int
	Failed    int
	Skipped   int

	// Attempted counts items that produced a result; Total is the batch size.
	Attempted int
	Total     int
	Cancelled bool

	// Byte totals cover successful items only.
	TotalInputBytes  int64
	TotalOutputBytes int64

	LastOutputPath string
	Results        []job.Result
	Elapsed        time.Duration
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *Summary) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}

// Failures returns the failed results in processing order.
func (s *Summary) Failures() []job.Result {
	var out []job.Result
	for _, r := range s.Results {
		if r.Status == job.StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

func summarize(runID uuid.UUID, total int, results []job.Result, cancelled bool, elapsed time.Duration) Summary {
	s := Summary{
		RunID:     runID,
		Total:     total,
		Attempted: len(results),
		Cancelled: cancelled,
		Results:   results,
		Elapsed:   elapsed,
	}
	for _, r := range results {
		switch r.Status {
		case job.StatusSuccess:
			s.Succeeded++
			s.TotalInputBytes += r.InputBytes
			s.TotalOutputBytes += r.OutputBytes
			s.LastOutputPath = r.OutputPath
		case job.StatusFailed:
			s.Failed++
		case job.StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
