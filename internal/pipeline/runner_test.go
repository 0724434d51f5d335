package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/naming"
	"github.com/backmassage/pixmaster/internal/tool"
	"github.com/backmassage/pixmaster/internal/transform"
)

// fakeTransform writes a three-byte output per item unless process is set.
type fakeTransform struct {
	process func(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error)

	mu         sync.Mutex
	calls      []string
	tempDirs   []string
	terminated atomic.Int32
}

func (f *fakeTransform) Name() string            { return "fake" }
func (f *fakeTransform) Formats() []codec.Format { return []codec.Format{codec.PNG, codec.JPEG} }
func (f *fakeTransform) Validate(job.Options) error {
	return nil
}

func (f *fakeTransform) Schema() job.Schema {
	return job.Schema{job.KeyQuality: {Default: codec.QualityHigh, Choices: codec.QualityLevels}}
}

func (f *fakeTransform) OutputPath(item job.Item, opts job.Options) string {
	return naming.OutputPath(opts.OutputDir, item.Source, "", opts.Format)
}

func (f *fakeTransform) Process(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.Name())
	f.tempDirs = append(f.tempDirs, opts.TempDir)
	f.mu.Unlock()
	if f.process != nil {
		return f.process(ctx, item, opts)
	}
	return f.write(item, opts)
}

func (f *fakeTransform) write(item job.Item, opts job.Options) (job.Outcome, error) {
	out := f.OutputPath(item, opts)
	return job.Outcome{OutputPath: out}, os.WriteFile(out, []byte("out"), 0o644)
}

func (f *fakeTransform) Terminate() { f.terminated.Add(1) }

func (f *fakeTransform) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recorder captures observer events in order.
type recorder struct {
	mu        sync.Mutex
	events    []string
	results   []job.Result
	snaps     []Snapshot
	summaries []Summary
	onResult  func(job.Result)
}

func (r *recorder) OnProgress(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "progress")
	r.snaps = append(r.snaps, s)
}

func (r *recorder) OnResult(res job.Result) {
	r.mu.Lock()
	r.events = append(r.events, "result")
	r.results = append(r.results, res)
	hook := r.onResult
	r.mu.Unlock()
	if hook != nil {
		hook(res)
	}
}

func (r *recorder) OnSummary(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "summary")
	r.summaries = append(r.summaries, s)
}

func newRunner(obs Observer) *Runner {
	return NewRunner(logging.Discard(), obs, true)
}

func inputs(t *testing.T, sizes ...int) []job.Item {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(sizes))
	for i, n := range sizes {
		paths[i] = writeBytes(t, dir, "img"+string(rune('a'+i))+".png", n)
	}
	return FileItems(paths)
}

func options(out string) job.Options {
	return job.Options{OutputDir: out, Format: codec.PNG}
}

func statuses(rs []job.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Status.String()
		if r.Reason != "" {
			out[i] += "(" + r.Reason + ")"
		}
	}
	return out
}

func TestRunner_AllSucceed(t *testing.T) {
	rec := &recorder{}
	ft := &fakeTransform{}
	out := filepath.Join(t.TempDir(), "new", "out")

	s, err := newRunner(rec).Run(context.Background(), inputs(t, 100, 200, 300), options(out), ft)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s.Succeeded != 3 || s.Failed != 0 || s.Skipped != 0 || s.Attempted != 3 || s.Total != 3 {
		t.Errorf("summary = %+v", s)
	}
	if s.Cancelled {
		t.Error("Cancelled should be false")
	}
	if s.RunID == uuid.Nil {
		t.Error("RunID should be set")
	}
	if s.TotalInputBytes != 600 || s.TotalOutputBytes != 9 {
		t.Errorf("bytes = %d -> %d, want 600 -> 9", s.TotalInputBytes, s.TotalOutputBytes)
	}
	if want := filepath.Join(out, "imgc.png"); s.LastOutputPath != want {
		t.Errorf("LastOutputPath = %q, want %q", s.LastOutputPath, want)
	}

	wantEvents := []string{"result", "progress", "result", "progress", "result", "progress", "summary"}
	if !sliceEqual(rec.events, wantEvents) {
		t.Errorf("events = %v, want %v", rec.events, wantEvents)
	}
	if len(rec.summaries) != 1 {
		t.Errorf("OnSummary called %d times, want 1", len(rec.summaries))
	}

	wantPct := []int{16, 50, 100}
	for i, snap := range rec.snaps {
		if snap.ItemsProcessed != i+1 || snap.ItemsTotal != 3 {
			t.Errorf("snapshot %d counters = %d/%d", i, snap.ItemsProcessed, snap.ItemsTotal)
		}
		if snap.Percent != wantPct[i] {
			t.Errorf("snapshot %d Percent = %d, want %d", i, snap.Percent, wantPct[i])
		}
	}

	// Scratch dir exists during the run and is gone afterwards.
	if len(ft.tempDirs) != 3 || ft.tempDirs[0] == "" {
		t.Fatalf("transform did not see a scratch dir: %v", ft.tempDirs)
	}
	if _, err := os.Stat(ft.tempDirs[0]); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s not removed", ft.tempDirs[0])
	}
}

func TestRunner_ContinuesAfterFailure(t *testing.T) {
	ft := &fakeTransform{}
	ft.process = func(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
		if item.Name() == "imgb.png" {
			return job.Outcome{}, job.Fail(job.ReasonConversionError, errors.New("truncated"))
		}
		return ft.write(item, opts)
	}

	s, err := newRunner(nil).Run(context.Background(), inputs(t, 10, 10, 10), options(t.TempDir()), ft)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"success", "failed(conversion_error)", "success"}
	if got := statuses(s.Results); !sliceEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if s.TotalInputBytes != 20 {
		t.Errorf("TotalInputBytes = %d, want 20 (failed item excluded)", s.TotalInputBytes)
	}
}

func TestRunner_RecoversPanic(t *testing.T) {
	ft := &fakeTransform{}
	ft.process = func(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
		if item.Name() == "imga.png" {
			var m map[string]int
			m["boom"]++
		}
		return ft.write(item, opts)
	}

	s, err := newRunner(nil).Run(context.Background(), inputs(t, 1, 1), options(t.TempDir()), ft)
	if err != nil {
		t.Fatal(err)
	}
	if s.Failed != 1 || s.Succeeded != 1 {
		t.Errorf("summary = %d ok / %d failed, want 1/1", s.Succeeded, s.Failed)
	}
}

func TestRunner_StartErrors(t *testing.T) {
	items := inputs(t, 1)
	out := t.TempDir()
	tests := []struct {
		name  string
		items []job.Item
		opts  job.Options
		t     Transform
	}{
		{"no items", nil, options(out), &fakeTransform{}},
		{"no transform", items, options(out), nil},
		{"unsupported format", items, job.Options{OutputDir: out, Format: codec.BMP}, &fakeTransform{}},
		{"unknown setting", items, job.Options{OutputDir: out, Format: codec.PNG, Settings: map[job.Key]string{"dpi": "300"}}, &fakeTransform{}},
		{"bad choice", items, job.Options{OutputDir: out, Format: codec.PNG, Settings: map[job.Key]string{"quality": "Ultra"}}, &fakeTransform{}},
		{"no output dir", items, job.Options{Format: codec.PNG}, &fakeTransform{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r := newRunner(rec)
			err := r.Start(context.Background(), tt.items, tt.opts, tt.t)
			var ce *job.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("Start error = %v, want *job.ConfigurationError", err)
			}
			if r.Active() {
				t.Error("runner should be idle after a rejected start")
			}
			if len(rec.events) != 0 {
				t.Errorf("no events expected, got %v", rec.events)
			}
			if ft, ok := tt.t.(*fakeTransform); ok && ft.callCount() != 0 {
				t.Error("Process must not run for a rejected batch")
			}
		})
	}
}

func TestRunner_InvalidUpscaleOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	env := transform.NewEnv(&cfg, logging.Discard())
	opts := job.Options{OutputDir: t.TempDir(), Format: codec.PNG, Settings: map[job.Key]string{
		"family": "realesrgan", "device": "cpu",
	}}
	err := newRunner(nil).Start(context.Background(), inputs(t, 1), opts, transform.NewUpscale(env))
	var ce *job.ConfigurationError
	if !errors.As(err, &ce) || ce.Key != job.KeyDevice {
		t.Errorf("Start error = %v, want a device ConfigurationError", err)
	}
}

// blockOn returns a process func that writes outputs normally but blocks on
// the named item until the context is cancelled. When writeFirst is set the
// blocked item writes its output before blocking.
func blockOn(ft *fakeTransform, name string, writeFirst bool, started chan<- struct{}) func(context.Context, job.Item, job.Options) (job.Outcome, error) {
	return func(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
		if item.Name() != name {
			return ft.write(item, opts)
		}
		if writeFirst {
			ft.write(item, opts)
		}
		close(started)
		<-ctx.Done()
		return job.Outcome{}, ctx.Err()
	}
}

func TestRunner_Busy(t *testing.T) {
	ft := &fakeTransform{}
	started := make(chan struct{})
	ft.process = blockOn(ft, "imga.png", false, started)

	r := newRunner(nil)
	if err := r.Start(context.Background(), inputs(t, 1), options(t.TempDir()), ft); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := r.Start(context.Background(), inputs(t, 1), options(t.TempDir()), &fakeTransform{}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}
	r.Cancel()
	r.Wait()

	// Idle again: a new batch is accepted and not marked cancelled.
	s, err := r.Run(context.Background(), inputs(t, 1), options(t.TempDir()), &fakeTransform{})
	if err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if s.Cancelled || s.Succeeded != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRunner_CancelStopsQueue(t *testing.T) {
	rec := &recorder{}
	ft := &fakeTransform{}
	started := make(chan struct{})
	ft.process = blockOn(ft, "imgd.png", false, started)
	out := t.TempDir()

	r := newRunner(rec)
	if err := r.Start(context.Background(), inputs(t, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1), options(out), ft); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("item 4 never started")
	}
	r.Cancel()
	s := r.Wait()

	if !s.Cancelled {
		t.Error("summary should be marked cancelled")
	}
	if s.Attempted != 3 || s.Succeeded != 3 {
		t.Errorf("attempted %d, succeeded %d; want 3/3 (interrupted item omitted)", s.Attempted, s.Succeeded)
	}
	if ft.callCount() != 4 {
		t.Errorf("Process called %d times, want 4", ft.callCount())
	}
	if ft.terminated.Load() == 0 {
		t.Error("Cancel should terminate the in-flight tool")
	}
	if len(rec.summaries) != 1 || rec.events[len(rec.events)-1] != "summary" {
		t.Errorf("summary must be the last event, got %v", rec.events)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 3 {
		t.Errorf("output dir has %d files, want 3", len(entries))
	}
	if r.Active() {
		t.Error("runner should be idle after Wait")
	}
}

func TestRunner_CancelAfterPartialOutput(t *testing.T) {
	ft := &fakeTransform{}
	started := make(chan struct{})
	ft.process = blockOn(ft, "imgb.png", true, started)

	r := newRunner(nil)
	if err := r.Start(context.Background(), inputs(t, 1, 1, 1), options(t.TempDir()), ft); err != nil {
		t.Fatal(err)
	}
	<-started
	r.Cancel()
	s := r.Wait()

	want := []string{"success", "failed(cancelled)"}
	if got := statuses(s.Results); !sliceEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestRunner_CancelFromObserver(t *testing.T) {
	var r *Runner
	rec := &recorder{}
	rec.onResult = func(res job.Result) {
		if res.Item.Name() == "imgb.png" {
			r.Cancel()
		}
	}
	ft := &fakeTransform{}
	r = newRunner(rec)
	if err := r.Start(context.Background(), inputs(t, 1, 1, 1, 1), options(t.TempDir()), ft); err != nil {
		t.Fatal(err)
	}
	s := r.Wait()
	if s.Attempted != 2 || !s.Cancelled {
		t.Errorf("attempted %d cancelled %v, want 2/true", s.Attempted, s.Cancelled)
	}
	if ft.callCount() != 2 {
		t.Errorf("Process called %d times, want 2", ft.callCount())
	}
}

func TestRunner_MissingInput(t *testing.T) {
	ft := &fakeTransform{}
	items := inputs(t, 5)
	items = append(items, job.NewItem(filepath.Join(t.TempDir(), "vanished.png")))

	s, err := newRunner(nil).Run(context.Background(), items, options(t.TempDir()), ft)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"success", "failed(file not found)"}
	if got := statuses(s.Results); !sliceEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if ft.callCount() != 1 {
		t.Errorf("Process called %d times, want 1", ft.callCount())
	}
}

func TestRunner_OutputCollision(t *testing.T) {
	dir := t.TempDir()
	a := writeBytes(t, dir, "cover.jpg", 4)
	b := writeBytes(t, dir, "cover.bmp", 4)
	ft := &fakeTransform{}

	s, err := newRunner(nil).Run(context.Background(), FileItems([]string{a, b}), options(t.TempDir()), ft)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"success", "failed(output collision)"}
	if got := statuses(s.Results); !sliceEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if ft.callCount() != 1 {
		t.Errorf("Process called %d times, want 1", ft.callCount())
	}
}

func TestRunner_SkipExisting(t *testing.T) {
	out := t.TempDir()
	items := inputs(t, 10, 10)
	writeBytes(t, out, "imga.png", 1)
	ft := &fakeTransform{}
	rec := &recorder{}

	opts := options(out)
	opts.SkipExisting = true
	s, err := newRunner(rec).Run(context.Background(), items, opts, ft)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"skipped(output exists)", "success"}
	if got := statuses(s.Results); !sliceEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if ft.callCount() != 1 {
		t.Errorf("Process called %d times, want 1", ft.callCount())
	}
	if last := rec.snaps[len(rec.snaps)-1]; last.Percent != 100 {
		t.Errorf("final Percent = %d, want 100", last.Percent)
	}
}

func TestRunner_PartialGroupStillSucceeds(t *testing.T) {
	dir := t.TempDir()
	a := writeBytes(t, dir, "a.png", 10)
	ft := &fakeTransform{}
	ft.process = func(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
		o, err := ft.write(item, opts)
		o.SkippedMembers = []string{"b.png"}
		o.Partial = errors.New("1 member skipped")
		return o, err
	}
	group := job.Item{Source: "pages", DisplayName: "pages", Members: []string{a, filepath.Join(dir, "b.png")}}

	s, err := newRunner(nil).Run(context.Background(), []job.Item{group}, options(t.TempDir()), ft)
	if err != nil {
		t.Fatal(err)
	}
	if s.Succeeded != 1 {
		t.Fatalf("summary = %+v", s)
	}
	res := s.Results[0]
	if len(res.SkippedMembers) != 1 || res.Err == nil || res.InputBytes != 10 {
		t.Errorf("result = %+v", res)
	}
}

// --- end-to-end with the real transforms ---

func TestScenario_ConvertPNGToJPEG(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"one.png", "two.png", "three.png"} {
		paths = append(paths, writeTestPNG(t, dir, name, 16, 12))
	}
	out := t.TempDir()
	cfg := config.DefaultConfig()
	conv := transform.NewConvert(transform.NewEnv(&cfg, logging.Discard()))

	opts := job.Options{OutputDir: out, Format: codec.JPEG, Settings: map[job.Key]string{"quality": "high"}}
	s, err := newRunner(nil).Run(context.Background(), FileItems(paths), opts, conv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Succeeded != 3 || s.Failed != 0 {
		t.Errorf("summary = %d ok / %d failed", s.Succeeded, s.Failed)
	}
	for _, name := range []string{"one.jpg", "two.jpg", "three.jpg"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing output %s", name)
		}
	}
}

func TestScenario_CorruptItemDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png", 8, 8)
	b := writeBytes(t, dir, "b.png", 40)
	c := writeTestPNG(t, dir, "c.png", 8, 8)
	cfg := config.DefaultConfig()
	conv := transform.NewConvert(transform.NewEnv(&cfg, logging.Discard()))

	s, err := newRunner(nil).Run(context.Background(), FileItems([]string{a, b, c}),
		job.Options{OutputDir: t.TempDir(), Format: codec.JPEG}, conv)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"success", "failed(conversion_error)", "success"}
	if got := statuses(s.Results); !sliceEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestScenario_MissingToolFailsEveryItem(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeTestPNG(t, dir, "a.png", 4, 4), writeTestPNG(t, dir, "b.png", 4, 4)}
	cfg := config.DefaultConfig()
	cfg.ToolsDir = filepath.Join(t.TempDir(), "absent")
	up := transform.NewUpscale(transform.NewEnv(&cfg, logging.Discard()))

	s, err := newRunner(nil).Run(context.Background(), FileItems(paths),
		job.Options{OutputDir: t.TempDir(), Format: codec.PNG}, up)
	if err != nil {
		t.Fatal(err)
	}
	if s.Failed != 2 {
		t.Fatalf("Failed = %d, want 2", s.Failed)
	}
	for _, res := range s.Results {
		var nf *tool.NotFoundError
		if !errors.As(res.Err, &nf) {
			t.Errorf("%s: err = %v, want *tool.NotFoundError", res.Item.Name(), res.Err)
		}
	}
}
