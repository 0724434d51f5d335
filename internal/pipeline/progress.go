package pipeline

import (
	"math"
	"time"
)

// Snapshot is the progress of a run after some number of items.
type Snapshot struct {
	ItemsProcessed int
	ItemsTotal     int
	Percent        int // 0-100, rounded down

	ETA      time.Duration
	ETAKnown bool

	// Throughput is input bytes per second.
	Throughput      float64
	ThroughputKnown bool

	Elapsed time.Duration
	Current string // display name of the last processed item
}

// Tracker computes progress, throughput and ETA for one run. It is owned by
// the runner goroutine and not safe for concurrent use.
type Tracker struct {
	now   func() time.Time
	start time.Time

	itemsTotal int
	bytesTotal int64

	itemsDone int
	bytesDone int64
	current   string
}

// NewTracker starts tracking a run of itemsTotal items totalling bytesTotal
// input bytes. bytesTotal may be 0 when sizes are unknown; percent then
// follows the item count. now defaults to time.Now.
func NewTracker(itemsTotal int, bytesTotal int64, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, start: now(), itemsTotal: itemsTotal, bytesTotal: bytesTotal}
}

// Advance records one processed item of inputBytes and returns the new snapshot.
func (t *Tracker) Advance(inputBytes int64, current string) Snapshot {
	t.itemsDone++
	if inputBytes > 0 {
		t.bytesDone += inputBytes
	}
	t.current = current
	return t.Snapshot()
}

// Snapshot returns the current progress without advancing.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		ItemsProcessed: t.itemsDone,
		ItemsTotal:     t.itemsTotal,
		Elapsed:        t.now().Sub(t.start),
		Current:        t.current,
	}
	s.Percent = t.percent()

	secs := s.Elapsed.Seconds()
	if secs <= 0 || t.itemsDone == 0 {
		return s
	}

	if t.bytesTotal > 0 {
		if t.bytesDone == 0 {
			return s
		}
		s.Throughput = float64(t.bytesDone) / secs
		s.ThroughputKnown = true
		remaining := t.bytesTotal - t.bytesDone
		if remaining < 0 {
			remaining = 0
		}
		s.ETA = seconds(float64(remaining) / s.Throughput)
		s.ETAKnown = true
		return s
	}

	// Sizes unknown: estimate from the item rate.
	if t.bytesDone > 0 {
		s.Throughput = float64(t.bytesDone) / secs
		s.ThroughputKnown = true
	}
	perItem := secs / float64(t.itemsDone)
	remaining := t.itemsTotal - t.itemsDone
	if remaining < 0 {
		remaining = 0
	}
	s.ETA = seconds(perItem * float64(remaining))
	s.ETAKnown = true
	return s
}

func (t *Tracker) percent() int {
	var p int
	switch {
	case t.bytesTotal > 0:
		p = int(t.bytesDone * 100 / t.bytesTotal)
	case t.itemsTotal > 0:
		p = t.itemsDone * 100 / t.itemsTotal
	}
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

func seconds(s float64) time.Duration {
	if math.IsInf(s, 0) || math.IsNaN(s) {
		return 0
	}
	return time.Duration(s * float64(time.Second)).Round(time.Second)
}
