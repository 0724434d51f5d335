package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/logging"
)

// waitDelay bounds how long Wait keeps draining stderr after the tool exits
// while a descendant still holds the pipe.
const waitDelay = 2 * time.Second

// Result holds the outcome of one tool invocation.
type Result struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// Terminator is implemented by anything that can abort its running tool.
type Terminator interface {
	Terminate()
}

// Invoker runs one external tool at a time. The zero value is not usable;
// construct with [NewInvoker].
type Invoker struct {
	log     *logging.Logger
	verbose bool

	mu         sync.Mutex
	cancel     context.CancelFunc
	terminated bool
}

// NewInvoker returns an Invoker that logs command lines when verbose.
func NewInvoker(log *logging.Logger, verbose bool) *Invoker {
	if log == nil {
		log = logging.Discard()
	}
	return &Invoker{log: log, verbose: verbose}
}

// Resolve checks that exe exists without spawning anything. Names containing
// a path separator are stat'ed; bare names are looked up on PATH.
func Resolve(exe string) (string, error) {
	if exe == "" {
		return "", &NotFoundError{Exe: exe, Err: errors.New("empty executable")}
	}
	if strings.ContainsAny(exe, `/\`) || filepath.IsAbs(exe) {
		info, err := os.Stat(exe)
		if err != nil {
			return "", &NotFoundError{Exe: exe, Err: err}
		}
		if info.IsDir() {
			return "", &NotFoundError{Exe: exe, Err: errors.New("is a directory")}
		}
		return exe, nil
	}
	p, err := exec.LookPath(exe)
	if err != nil {
		return "", &NotFoundError{Exe: exe, Err: err}
	}
	return p, nil
}

// Invoke runs exe with args and waits for it, killing its whole process
// tree when timeout elapses (timeout <= 0 means the default), when ctx is
// done, or when Terminate is called.
func (inv *Invoker) Invoke(ctx context.Context, exe string, args []string, timeout time.Duration) (*Result, error) {
	path, err := Resolve(exe)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = config.DefaultToolTimeout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, args...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	var echo *toolLines
	if inv.verbose {
		echo = &toolLines{log: inv.log}
		cmd.Stderr = io.MultiWriter(&stderrBuf, echo)
	}
	cmd.WaitDelay = waitDelay
	prepare(cmd)

	if inv.verbose {
		inv.log.Tool("exec: %s %s", path, strings.Join(args, " "))
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", exe, err)
	}
	inv.begin(cancel)
	waitErr := cmd.Wait()
	terminated := inv.end()
	if echo != nil {
		echo.flush()
	}
	// Descendants that outlived the tool share its group.
	killTree(cmd)

	res := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}

	// Tool exited cleanly; at most a descendant kept stderr open.
	if waitErr == nil || (errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode == 0) {
		return res, nil
	}

	switch {
	case terminated:
		return res, ErrTerminated
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return res, &TimeoutError{Exe: exe, Timeout: timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return res, &FailedError{
			Exe:      exe,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Hint:     Classify(res.Stderr),
		}
	}
	return res, fmt.Errorf("wait %s: %w", exe, waitErr)
}

// InvokeExpecting is Invoke plus a check that expectedOutput exists after a
// zero exit.
func (inv *Invoker) InvokeExpecting(ctx context.Context, exe string, args []string, timeout time.Duration, expectedOutput string) (*Result, error) {
	res, err := inv.Invoke(ctx, exe, args, timeout)
	if err != nil {
		return res, err
	}
	if info, statErr := os.Stat(expectedOutput); statErr != nil || info.Size() == 0 {
		return res, &FailedError{
			Exe:      exe,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Hint:     Classify(res.Stderr),
			Missing:  expectedOutput,
		}
	}
	return res, nil
}

// Terminate kills the running tool and its descendants. Safe to call from
// any goroutine; a no-op when nothing is running.
func (inv *Invoker) Terminate() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.cancel == nil {
		return
	}
	inv.terminated = true
	inv.cancel()
}

func (inv *Invoker) begin(cancel context.CancelFunc) {
	inv.mu.Lock()
	inv.cancel = cancel
	inv.terminated = false
	inv.mu.Unlock()
}

func (inv *Invoker) end() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	t := inv.terminated
	inv.cancel = nil
	inv.terminated = false
	return t
}

// toolLines logs a tool's stderr one line at a time at TOOL level.
type toolLines struct {
	log *logging.Logger
	mu  sync.Mutex
	buf []byte
}

func (w *toolLines) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *toolLines) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit(w.buf)
	w.buf = nil
}

func (w *toolLines) emit(line []byte) {
	if s := strings.TrimRight(string(line), "\r"); strings.TrimSpace(s) != "" {
		w.log.Tool("  %s", s)
	}
}
