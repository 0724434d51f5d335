package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/display"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/naming"
	"github.com/backmassage/pixmaster/internal/tool"
)

// ErrBusy is returned by Start while another batch is running.
var ErrBusy = errors.New("a batch is already running")

// Transform is the per-item operation a batch applies.
type Transform interface {
	Name() string
	Schema() job.Schema
	Formats() []codec.Format

	// Validate checks cross-field rules on options already normalised by
	// the schema.
	Validate(opts job.Options) error

	// OutputPath is the file Process will write for item.
	OutputPath(item job.Item, opts job.Options) string

	Process(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error)
}

// Runner executes at most one batch at a time on a background goroutine.
type Runner struct {
	log     *logging.Logger
	obs     Observer
	verbose bool

	// Now is the clock used for progress. Replace before Start in tests.
	Now func() time.Time

	mu        sync.Mutex
	active    bool
	cancel    context.CancelFunc
	transform Transform
	tempDir   string
	done      chan struct{}
	summary   Summary

	cancelled atomic.Bool
}

// NewRunner returns an idle Runner reporting to obs (nil means no observer).
func NewRunner(log *logging.Logger, obs Observer, verbose bool) *Runner {
	if log == nil {
		log = logging.Discard()
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Runner{log: log, obs: obs, verbose: verbose, Now: time.Now}
}

// Start validates the batch and launches it. All errors are returned before
// any item is processed: ErrBusy, or a *job.ConfigurationError.
func (r *Runner) Start(ctx context.Context, items []job.Item, opts job.Options, t Transform) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrBusy
	}
	r.active = true
	r.cancelled.Store(false)
	r.mu.Unlock()

	opts, err := r.prepare(items, opts, t)
	if err != nil {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		return err
	}

	batch := make([]job.Item, len(items))
	for i, it := range items {
		it.Members = append([]string(nil), it.Members...)
		batch[i] = it
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.transform = t
	r.tempDir = opts.TempDir
	r.done = done
	r.summary = Summary{}
	r.mu.Unlock()

	go r.run(runCtx, cancel, done, batch, opts, t)
	return nil
}

// prepare applies the schema, checks the format and creates the output
// and scratch directories.
func (r *Runner) prepare(items []job.Item, opts job.Options, t Transform) (job.Options, error) {
	if len(items) == 0 {
		return opts, job.Configf("no input items")
	}
	if t == nil {
		return opts, job.Configf("no transform")
	}
	if !supports(t.Formats(), opts.Format) {
		return opts, job.Configf("output format %s is not supported by %s", opts.Format, t.Name())
	}
	opts, err := t.Schema().Apply(opts)
	if err != nil {
		return opts, err
	}
	if err := t.Validate(opts); err != nil {
		return opts, err
	}
	if opts.OutputDir == "" {
		return opts, job.Configf("no output directory")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return opts, job.Configf("cannot create output directory %s: %v", opts.OutputDir, err)
	}
	tmp, err := os.MkdirTemp("", "pixmaster-run-*")
	if err != nil {
		return opts, job.Configf("cannot create scratch directory: %v", err)
	}
	opts.TempDir = tmp
	return opts, nil
}

func supports(formats []codec.Format, f codec.Format) bool {
	for _, s := range formats {
		if s == f {
			return true
		}
	}
	return false
}

// Wait blocks until the current batch finishes and returns its summary.
// Without a started batch it returns the zero Summary.
func (r *Runner) Wait() Summary {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return Summary{}
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Run is Start followed by Wait.
func (r *Runner) Run(ctx context.Context, items []job.Item, opts job.Options, t Transform) (Summary, error) {
	if err := r.Start(ctx, items, opts, t); err != nil {
		return Summary{}, err
	}
	return r.Wait(), nil
}

// Active reports whether a batch is running.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Cancel stops the batch: queued items are abandoned and the in-flight
// item's external tool is terminated. Safe from any goroutine; a no-op when
// idle.
func (r *Runner) Cancel() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.cancelled.Store(true)
	cancel, t := r.cancel, r.transform
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if term, ok := t.(tool.Terminator); ok {
		term.Terminate()
	}
}

// CleanupTemp removes the scratch directory of the last batch. Safe to call
// repeatedly.
func (r *Runner) CleanupTemp() error {
	r.mu.Lock()
	dir := r.tempDir
	r.mu.Unlock()
	return CleanupTemp(dir)
}

// CleanupTemp removes dir and everything in it. Missing dirs are not an error.
func CleanupTemp(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// --- batch goroutine ---

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, items []job.Item, opts job.Options, t Transform) {
	defer cancel()

	runID := uuid.New()
	sizes := make([]int64, len(items))
	var totalBytes int64
	for i, it := range items {
		sizes[i] = itemSize(it)
		totalBytes += sizes[i]
	}

	tracker := NewTracker(len(items), totalBytes, r.Now)
	start := r.Now()
	resolver := naming.NewCollisionResolver()
	results := make([]job.Result, 0, len(items))

	r.log.Info("Batch %s: %s %d item(s) -> %s [%s]", runID, t.Name(), len(items), opts.OutputDir, opts.Format)
	r.log.Debug(r.verbose, "Input size: %s, scratch: %s", display.FormatBytes(totalBytes), opts.TempDir)

	for i, item := range items {
		if r.cancelled.Load() || ctx.Err() != nil {
			break
		}
		r.log.Info("[%d/%d] %s", i+1, len(items), item.Name())

		res, keep := r.processItem(ctx, item, opts, t, resolver, sizes[i])
		if !keep {
			r.log.Warn("Cancelled: %s (no output written)", item.Name())
			break
		}
		results = append(results, res)
		r.logResult(res)

		snap := tracker.Advance(res.InputBytes, item.Name())
		r.obs.OnResult(res)
		r.obs.OnProgress(snap)
	}

	cancelled := r.cancelled.Load() || ctx.Err() != nil
	summary := summarize(runID, len(items), results, cancelled, r.Now().Sub(start))

	if err := CleanupTemp(opts.TempDir); err != nil {
		r.log.Warn("Cannot remove scratch directory %s: %v", opts.TempDir, err)
	}
	r.logSummary(&summary)

	r.mu.Lock()
	r.summary = summary
	r.active = false
	r.cancel = nil
	r.transform = nil
	r.mu.Unlock()

	r.obs.OnSummary(summary)
	close(done)
}

// processItem runs one item. keep is false when the item was interrupted
// by cancellation before producing any output; such items are not counted.
func (r *Runner) processItem(ctx context.Context, item job.Item, opts job.Options, t Transform, resolver *naming.CollisionResolver, size int64) (res job.Result, keep bool) {
	start := r.Now()
	res = job.Result{Item: item, InputBytes: size}
	defer func() { res.Duration = r.Now().Sub(start) }()

	if len(item.Members) == 0 {
		if _, err := os.Stat(item.Source); err != nil {
			return failed(res, job.Fail(job.ReasonFileNotFound, err)), true
		}
	}

	out := t.OutputPath(item, opts)
	if err := resolver.Claim(item.Source, out); err != nil {
		return failed(res, job.Fail(job.ReasonCollision, err)), true
	}

	if opts.SkipExisting {
		if _, err := os.Stat(out); err == nil {
			res.Status = job.StatusSkipped
			res.Reason = job.ReasonOutputExists
			return res, true
		}
	}

	outcome, err := safeProcess(ctx, t, item, opts)
	if err != nil {
		if r.cancelled.Load() || ctx.Err() != nil {
			if _, statErr := os.Stat(out); statErr != nil {
				return res, false
			}
			res.OutputBytes = fileSize(out)
			return failed(res, job.Fail(job.ReasonCancelled, err)), true
		}
		res.OutputBytes = fileSize(out)
		return failed(res, err), true
	}

	res.Status = job.StatusSuccess
	res.OutputPath = outcome.OutputPath
	if res.OutputPath == "" {
		res.OutputPath = out
	}
	res.OutputBytes = fileSize(res.OutputPath)
	res.SkippedMembers = outcome.SkippedMembers
	res.Err = outcome.Partial
	return res, true
}

// safeProcess converts a transform panic into an item failure.
func safeProcess(ctx context.Context, t Transform, item job.Item, opts job.Options) (out job.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("internal error: %v\n%s", p, debug.Stack())
		}
	}()
	return t.Process(ctx, item, opts)
}

func failed(res job.Result, err error) job.Result {
	res.Status = job.StatusFailed
	res.Err = err
	res.Reason = job.ReasonOf(err)
	return res
}

// --- logging helpers ---

func (r *Runner) logResult(res job.Result) {
	switch res.Status {
	case job.StatusSuccess:
		ratio := int64(100)
		if res.InputBytes > 0 {
			ratio = res.OutputBytes * 100 / res.InputBytes
		}
		r.log.Success("-> %s in %s (%d%% of original)", filepath.Base(res.OutputPath), res.Duration.Round(time.Millisecond), ratio)
		if n := len(res.SkippedMembers); n > 0 {
			r.log.Warn("  %d member(s) could not be opened and were left out", n)
		}
	case job.StatusSkipped:
		r.log.Warn("Skip (exists): %s", res.Item.Name())
	case job.StatusFailed:
		r.log.Error("Failed: %s: %s", res.Item.Name(), res.Reason)
		if res.Err != nil && res.Err.Error() != res.Reason {
			r.log.Debug(r.verbose, "  %v", res.Err)
		}
	}
}

func (r *Runner) logSummary(s *Summary) {
	r.log.Info("==============================")
	if s.Cancelled {
		r.log.Warn("Cancelled after %d of %d item(s)", s.Attempted, s.Total)
	}
	r.log.Info("Done: %d succeeded, %d skipped, %d failed (%s)", s.Succeeded, s.Skipped, s.Failed, s.Elapsed.Round(time.Second))

	if s.Succeeded > 0 {
		saved := s.SpaceSaved()
		if saved >= 0 {
			r.log.Success("  Total space saved: %s (input %s -> output %s)",
				display.FormatBytes(saved),
				display.FormatBytes(s.TotalInputBytes),
				display.FormatBytes(s.TotalOutputBytes))
		} else {
			r.log.Warn("  Output is %s larger than input", display.FormatBytes(-saved))
		}
	}
	for _, f := range s.Failures() {
		r.log.Error("  %s: %s", f.Item.Name(), f.Reason)
	}
}
