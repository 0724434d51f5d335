package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/backmassage/pixmaster/internal/display"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/pipeline"
	"github.com/backmassage/pixmaster/internal/transform"
)

// consoleReporter adds a progress line after every item. Per-item results
// and the summary are already logged by the runner.
type consoleReporter struct {
	pipeline.NopObserver
	log *logging.Logger
}

func newConsoleReporter(log *logging.Logger) *consoleReporter {
	return &consoleReporter{log: log}
}

func (c *consoleReporter) OnProgress(s pipeline.Snapshot) {
	c.log.Info("Progress: %d/%d (%d%%) · %s · ETA %s",
		s.ItemsProcessed, s.ItemsTotal, s.Percent,
		display.FormatThroughput(s.Throughput, s.ThroughputKnown),
		display.FormatETA(s.ETA, s.ETAKnown))
}

func (c *consoleReporter) OnSummary(s pipeline.Summary) {
	if s.LastOutputPath != "" {
		c.log.Info("Last output: %s", s.LastOutputPath)
	}
}

// jsonReporter writes one JSON object per event (JSON Lines).
type jsonReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONReporter(w io.Writer) *jsonReporter {
	return &jsonReporter{enc: json.NewEncoder(w)}
}

type progressEvent struct {
	Event      string   `json:"event"`
	Processed  int      `json:"processed"`
	Total      int      `json:"total"`
	Percent    int      `json:"percent"`
	Throughput *float64 `json:"throughput_bps"`
	ETASeconds *float64 `json:"eta_seconds"`
	ElapsedMS  int64    `json:"elapsed_ms"`
	Current    string   `json:"current,omitempty"`
}

type resultEvent struct {
	Event          string   `json:"event"`
	Item           string   `json:"item"`
	Source         string   `json:"source"`
	Status         string   `json:"status"`
	Reason         string   `json:"reason,omitempty"`
	Error          string   `json:"error,omitempty"`
	Output         string   `json:"output,omitempty"`
	InputBytes     int64    `json:"input_bytes"`
	OutputBytes    int64    `json:"output_bytes"`
	SkippedMembers []string `json:"skipped_members,omitempty"`
	DurationMS     int64    `json:"duration_ms"`
}

type failureEntry struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

type summaryEvent struct {
	Event       string         `json:"event"`
	RunID       string         `json:"run_id"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	Attempted   int            `json:"attempted"`
	Total       int            `json:"total"`
	Cancelled   bool           `json:"cancelled"`
	InputBytes  int64          `json:"input_bytes"`
	OutputBytes int64          `json:"output_bytes"`
	SpaceSaved  int64          `json:"space_saved"`
	LastOutput  string         `json:"last_output,omitempty"`
	ElapsedMS   int64          `json:"elapsed_ms"`
	Failures    []failureEntry `json:"failures,omitempty"`
}

func (j *jsonReporter) emit(v interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(v)
}

func (j *jsonReporter) OnProgress(s pipeline.Snapshot) {
	ev := progressEvent{
		Event:     "progress",
		Processed: s.ItemsProcessed,
		Total:     s.ItemsTotal,
		Percent:   s.Percent,
		ElapsedMS: s.Elapsed.Milliseconds(),
		Current:   s.Current,
	}
	if s.ThroughputKnown {
		tp := s.Throughput
		ev.Throughput = &tp
	}
	if s.ETAKnown {
		eta := s.ETA.Seconds()
		ev.ETASeconds = &eta
	}
	j.emit(ev)
}

func (j *jsonReporter) OnResult(r job.Result) {
	ev := resultEvent{
		Event:          "result",
		Item:           r.Item.Name(),
		Source:         r.Item.Source,
		Status:         r.Status.String(),
		Reason:         r.Reason,
		Output:         r.OutputPath,
		InputBytes:     r.InputBytes,
		OutputBytes:    r.OutputBytes,
		SkippedMembers: r.SkippedMembers,
		DurationMS:     r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	j.emit(ev)
}

func (j *jsonReporter) OnSummary(s pipeline.Summary) {
	ev := summaryEvent{
		Event:       "summary",
		RunID:       s.RunID.String(),
		Succeeded:   s.Succeeded,
		Failed:      s.Failed,
		Skipped:     s.Skipped,
		Attempted:   s.Attempted,
		Total:       s.Total,
		Cancelled:   s.Cancelled,
		InputBytes:  s.TotalInputBytes,
		OutputBytes: s.TotalOutputBytes,
		SpaceSaved:  s.SpaceSaved(),
		LastOutput:  s.LastOutputPath,
		ElapsedMS:   s.Elapsed.Milliseconds(),
	}
	for _, f := range s.Failures() {
		ev.Failures = append(ev.Failures, failureEntry{Item: f.Item.Name(), Reason: f.Reason})
	}
	j.emit(ev)
}

// printModels lists every tool family with its models and scales.
func printModels(w io.Writer) {
	for _, f := range transform.Families {
		fmt.Fprintf(w, "%s (%s)", f.Name, f.Binary)
		var notes []string
		if f.CPU {
			notes = append(notes, "cpu")
		}
		if f.Noise {
			notes = append(notes, fmt.Sprintf("noise %d..%d", f.NoiseMin, f.NoiseMax))
		}
		if len(notes) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(notes, ", "))
		}
		fmt.Fprintln(w)
		for _, m := range f.Models {
			scales := make([]string, len(m.Scales))
			for i, s := range m.Scales {
				scales[i] = strconv.Itoa(s) + "x"
			}
			fmt.Fprintf(w, "  %-40s %s\n", m.Name, strings.Join(scales, " "))
		}
	}
}
