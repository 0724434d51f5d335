package pipeline

import "github.com/backmassage/pixmaster/internal/job"

// Observer receives a run's events on the runner goroutine, in order:
// for each attempted item one OnResult then one OnProgress, and finally
// one OnSummary.
type Observer interface {
	OnProgress(Snapshot)
	OnResult(job.Result)
	OnSummary(Summary)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnProgress(Snapshot) {}
func (NopObserver) OnResult(job.Result) {}
func (NopObserver) OnSummary(Summary)   {}

// ObserverFuncs adapts optional callbacks to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(Snapshot)
	Result   func(job.Result)
	Summary  func(Summary)
}

func (f ObserverFuncs) OnProgress(s Snapshot) {
	if f.Progress != nil {
		f.Progress(s)
	}
}

func (f ObserverFuncs) OnResult(r job.Result) {
	if f.Result != nil {
		f.Result(r)
	}
}

func (f ObserverFuncs) OnSummary(s Summary) {
	if f.Summary != nil {
		f.Summary(s)
	}
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnProgress(s Snapshot) {
	for _, ob := range o {
		ob.OnProgress(s)
	}
}

func (o Observers) OnResult(r job.Result) {
	for _, ob := range o {
		ob.OnResult(r)
	}
}

func (o Observers) OnSummary(s Summary) {
	for _, ob := range o {
		ob.OnSummary(s)
	}
}
