// Command pixmaster is the CLI entrypoint for the Pixmaster batch image
// pipeline.
//
// Each subcommand (convert, upscale, denoise, stitch) builds a list of job
// items from its arguments and hands it to one pipeline.Runner; analyze,
// check and models are read-only helpers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/display"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/transform"
)

// version and commit are injected at build time via -ldflags.
// When built with plain "go build", these retain their defaults.
var (
	version = "1.0.0"
	commit  = "unknown"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1 // configuration error or at least one failed item
	exitCancelled = 130
)

// exitError carries a process exit code through cobra without printing.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	os.Exit(run())
}

func run() int {
	root, err := newRootCmd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pixmaster: %v\n", err)
		return exitFailure
	}
	if err := root.ExecuteContext(context.Background()); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "pixmaster: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// app is the state shared by all subcommands once the root pre-run has
// loaded configuration and opened the logger.
type app struct {
	v   *viper.Viper
	cfg config.Config
	log *logging.Logger
}

func newRootCmd() (*cobra.Command, error) {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:               "pixmaster",
		Short:             "Batch image conversion, upscaling, denoising and stitching",
		Version:           fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	if err := config.BindFlags(root.PersistentFlags(), a.v); err != nil {
		return nil, err
	}
	root.AddCommand(
		a.convertCmd(),
		a.upscaleCmd(),
		a.denoiseCmd(),
		a.stitchCmd(),
		a.analyzeCmd(),
		a.checkCmd(),
		a.modelsCmd(),
	)
	return root, nil
}

// setup is the bootstrap phase: the logger doesn't exist yet, so errors are
// returned to run() and printed to stderr. Once NewLogger succeeds, all
// output goes through the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log

	if !cfg.JSON {
		display.PrintBanner(os.Stdout)
	}
	a.log.Debug(cfg.Verbose, "pixmaster %s (%s), tools in %s", version, commit, cfg.ToolsDir)
	return nil
}

func (a *app) close() {
	if a.log != nil {
		a.log.Close()
	}
}

func (a *app) env() *transform.Env {
	return transform.NewEnv(&a.cfg, a.log)
}

// absPath returns the absolute, symlink-resolved path when it exists, or
// the cleaned absolute path otherwise.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
