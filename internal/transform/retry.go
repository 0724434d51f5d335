package transform

import (
	"context"
	"errors"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/tool"
)

// retryAction identifies which fallback was applied (or none).
type retryAction int

const (
	retryNone     retryAction = iota
	retryOnCPU                // GPU could not be initialised; rerun with -g -1.
	retrySmallTile            // Out of memory; rerun with a smaller -t.
)

func (a retryAction) String() string {
	switch a {
	case retryOnCPU:
		return "retrying on the CPU"
	case retrySmallTile:
		return "retrying with smaller tiles"
	}
	return "no retry"
}

const (
	maxToolAttempts = 4
	firstTile       = 200
	minTile         = 32
)

// retryState tracks which fallbacks have been applied across the attempts
// of one tool run.
type retryState struct {
	attempt     int
	maxAttempts int

	cpu        bool
	cpuAllowed bool
	tile       int
}

func newRetryState(p upscaleParams) *retryState {
	return &retryState{maxAttempts: maxToolAttempts, cpu: p.cpu, cpuAllowed: p.family.CPU}
}

// advance inspects a failed run and applies the first fallback that fits.
// Only one fix is applied per call. Returns retryNone when nothing applies
// or the attempt limit is reached.
func (s *retryState) advance(err error) retryAction {
	s.attempt++
	if s.attempt >= s.maxAttempts {
		return retryNone
	}
	var fe *tool.FailedError
	if !errors.As(err, &fe) {
		return retryNone
	}

	switch fe.Hint {
	case tool.HintGPUInit:
		if s.cpuAllowed && !s.cpu {
			s.cpu = true
			return retryOnCPU
		}
	case tool.HintOutOfMemory:
		switch {
		case s.tile == 0:
			s.tile = firstTile
			return retrySmallTile
		case s.tile/2 >= minTile:
			s.tile /= 2
			return retrySmallTile
		}
	}
	return retryNone
}

// apply overlays the fallbacks on a.
func (s *retryState) apply(a tool.NCNNArgs) tool.NCNNArgs {
	if s.cpu {
		a.GPU = tool.GPUCPU
	}
	a.Tile = s.tile
	return a
}

// invokeWithRetry runs the tool on in, writing out, and reruns it with a
// fallback while the failure suggests one.
func invokeWithRetry(ctx context.Context, env *Env, p upscaleParams, in, out string, f codec.Format) error {
	exe := p.family.Executable(env.ToolsDir)
	rs := newRetryState(p)
	for {
		args := rs.apply(p.args(env.ToolsDir, in, out, f))
		_, err := env.Invoker.InvokeExpecting(ctx, exe, args.Build(), env.Timeout, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		action := rs.advance(err)
		if action == retryNone {
			return err
		}
		env.Log.Warn("  %s: %v; %s", p.family.Binary, err, action)
	}
}
