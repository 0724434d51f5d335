package transform

import (
	"time"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/tool"
)

// Env is the process-level context shared by the transforms: where the
// tools live, how long they may run and the invoker that runs them.
type Env struct {
	Log     *logging.Logger
	Verbose bool
	Invoker *tool.Invoker

	ToolsDir     string
	Pdftoppm     string
	Timeout      time.Duration
	MaxDimension int
}

// NewEnv builds an Env from the loaded configuration.
func NewEnv(cfg *config.Config, log *logging.Logger) *Env {
	if log == nil {
		log = logging.Discard()
	}
	return &Env{
		Log:          log,
		Verbose:      cfg.Verbose,
		Invoker:      tool.NewInvoker(log, cfg.Verbose),
		ToolsDir:     cfg.ToolsDir,
		Pdftoppm:     cfg.Pdftoppm,
		Timeout:      cfg.ToolTimeout,
		MaxDimension: cfg.MaxDimension,
	}
}

// Terminate kills whatever tool is currently running.
func (e *Env) Terminate() { e.Invoker.Terminate() }

// decoder returns a codec.Decoder that renders PDFs into tempDir.
func (e *Env) decoder(tempDir string) *codec.Decoder {
	return &codec.Decoder{
		PDF: &codec.PopplerRenderer{
			Invoker: e.Invoker,
			Exe:     e.Pdftoppm,
			Timeout: e.Timeout,
			TempDir: tempDir,
		},
		MaxDimension: e.MaxDimension,
	}
}
