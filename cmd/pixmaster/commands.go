package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/backmassage/pixmaster/internal/check"
	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/pipeline"
	"github.com/backmassage/pixmaster/internal/term"
	"github.com/backmassage/pixmaster/internal/tool"
	"github.com/backmassage/pixmaster/internal/transform"
)

func (a *app) convertCmd() *cobra.Command {
	var (
		format    string
		recursive bool
	)
	cmd := &cobra.Command{
		Use:   "convert [flags] <file|dir>...",
		Short: "Convert images, PSD composites and PDF pages to another format",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.fileItems(args, recursive)
			if err != nil {
				return err
			}
			return a.runBatch(cmd.Context(), transform.NewConvert(a.env()), items, format, settingsFrom(cmd.Flags()))
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", "png", "Output format: "+formatList(codec.AllFormats))
	fs.BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	fs.String(string(job.KeyQuality), codec.QualityHigh, "JPEG/WEBP/PDF quality: "+strings.Join(codec.QualityLevels, ", "))
	fs.String(string(job.KeyCompression), codec.CompressionNormal, "PNG compression: "+strings.Join(codec.CompressionLevels, ", "))
	fs.Int(string(job.KeyDPI), codec.DefaultDPI, "Resolution for rendering PDF pages")
	fs.Bool(string(job.KeyUpscale), false, "Upscale each converted image (png, jpg, webp outputs)")
	addModelFlags(fs, true)
	return cmd
}

func (a *app) upscaleCmd() *cobra.Command {
	var (
		format    string
		recursive bool
	)
	cmd := &cobra.Command{
		Use:   "upscale [flags] <file|dir>...",
		Short: "Upscale images with realesrgan or waifu2x",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.fileItems(args, recursive)
			if err != nil {
				return err
			}
			return a.runBatch(cmd.Context(), transform.NewUpscale(a.env()), items, format, settingsFrom(cmd.Flags()))
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", "png", "Output format: png, jpg, webp")
	fs.BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	addModelFlags(fs, true)
	fs.Int(string(job.KeyNoise), 0, "waifu2x noise level (-1 to 3)")
	return cmd
}

func (a *app) denoiseCmd() *cobra.Command {
	var (
		format    string
		recursive bool
	)
	cmd := &cobra.Command{
		Use:   "denoise [flags] <file|dir>...",
		Short: "Remove noise at 1x with waifu2x",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.fileItems(args, recursive)
			if err != nil {
				return err
			}
			return a.runBatch(cmd.Context(), transform.NewDenoise(a.env()), items, format, settingsFrom(cmd.Flags()))
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", "png", "Output format: png, jpg, webp")
	fs.BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	fs.Int(string(job.KeyNoise), 1, "Noise level (-1 to 3)")
	addModelFlags(fs, false)
	return cmd
}

func (a *app) stitchCmd() *cobra.Command {
	var (
		format string
		name   string
	)
	cmd := &cobra.Command{
		Use:   "stitch [flags] <dir|file>...",
		Short: "Join images into one canvas: each folder is a group, loose files form one more",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kept []string
			for _, arg := range args {
				if info, err := os.Stat(arg); (err == nil && info.IsDir()) || codec.IsSupportedInput(arg) {
					kept = append(kept, arg)
					continue
				}
				a.log.Warn("Ignoring unsupported input: %s", arg)
			}
			items := pipeline.GroupItems(kept, name)
			if len(items) == 0 {
				return errors.New("no groups to stitch")
			}
			return a.runBatch(cmd.Context(), transform.NewStitch(a.env()), items, format, settingsFrom(cmd.Flags()))
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", "png", "Output format: "+formatList(codec.AllFormats))
	fs.StringVar(&name, "name", "stitched", "Group name for loose files")
	fs.String(string(job.KeyOrientation), transform.Vertical, "vertical | horizontal")
	fs.Int(string(job.KeySpacing), 0, "Pixels between images (negative overlaps)")
	fs.Int(string(job.KeyDPI), codec.DefaultDPI, "Resolution for rendering PDF pages")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "analyze [flags] <file|dir>...",
		Short: "Print dimensions, sizes and storage-density outliers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, ignored, err := pipeline.ExpandInputs(args, recursive)
			if err != nil {
				return err
			}
			a.warnIgnored(ignored)
			if len(files) == 0 {
				return errors.New("no supported inputs")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var progress io.Writer
			if term.IsTerminal(os.Stderr) {
				progress = os.Stderr
			}
			pipeline.PrintAnalysis(os.Stdout, pipeline.Analyze(ctx, files, a.log, progress))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report which external tools and models are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !check.RunCheck(cmd.Context(), &a.cfg, a.log, tool.NewInvoker(a.log, a.cfg.Verbose)) {
				return &exitError{code: exitFailure}
			}
			return nil
		},
	}
}

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List tool families, their models and supported scales",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printModels(cmd.OutOrStdout())
		},
	}
}

// addModelFlags registers the tool selection flags. Denoise always runs
// waifu2x at 1x, so family and scale are upscale-only.
func addModelFlags(fs *pflag.FlagSet, upscale bool) {
	if upscale {
		fs.String(string(job.KeyFamily), "", "Tool family: realesrgan | waifu2x (default: from --model, else realesrgan)")
		fs.Int(string(job.KeyScale), 0, "Scale factor (default: the model's largest)")
	}
	fs.String(string(job.KeyModel), "", "Model name (see 'pixmaster models')")
	fs.String(string(job.KeyDevice), transform.DeviceAuto, "auto (GPU) | cpu (waifu2x only)")
}

// settingsFrom collects the transform settings the user set explicitly;
// unset flags fall back to the transform's schema defaults.
func settingsFrom(fs *pflag.FlagSet) map[job.Key]string {
	keys := []job.Key{
		job.KeyQuality, job.KeyCompression, job.KeyDPI, job.KeyUpscale,
		job.KeyFamily, job.KeyModel, job.KeyScale, job.KeyNoise, job.KeyDevice,
		job.KeyOrientation, job.KeySpacing,
	}
	settings := map[job.Key]string{}
	for _, k := range keys {
		f := fs.Lookup(string(k))
		if f == nil || !f.Changed {
			continue
		}
		v := f.Value.String()
		if f.Value.Type() == "bool" {
			v = "off"
			if f.Value.String() == "true" {
				v = "on"
			}
		}
		settings[k] = v
	}
	return settings
}

// fileItems expands arguments into single-file items and rejects an output
// directory nested inside a recursively walked input.
func (a *app) fileItems(args []string, recursive bool) ([]job.Item, error) {
	if recursive && a.cfg.OutputDir != "" {
		out, err := absPath(a.cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		for _, arg := range args {
			if info, err := os.Stat(arg); err != nil || !info.IsDir() {
				continue
			}
			in, err := absPath(arg)
			if err != nil {
				return nil, err
			}
			if err := a.cfg.ValidatePaths(in, out); err != nil {
				return nil, fmt.Errorf("%w (choose an output path outside %s)", err, arg)
			}
		}
	}

	files, ignored, err := pipeline.ExpandInputs(args, recursive)
	if err != nil {
		return nil, err
	}
	a.warnIgnored(ignored)
	if len(files) == 0 {
		return nil, errors.New("no supported inputs")
	}
	return pipeline.FileItems(files), nil
}

func (a *app) warnIgnored(ignored []string) {
	for _, p := range ignored {
		a.log.Warn("Ignoring unsupported input: %s", p)
	}
}

// runBatch starts the runner, forwards SIGINT/SIGTERM to Cancel and maps the
// summary onto an exit code.
func (a *app) runBatch(ctx context.Context, t pipeline.Transform, items []job.Item, format string, settings map[job.Key]string) error {
	f, err := codec.ParseFormat(format)
	if err != nil {
		return err
	}
	if a.cfg.OutputDir == "" {
		return errors.New("no output directory (use -o/--output)")
	}

	var obs pipeline.Observer
	if a.cfg.JSON {
		obs = newJSONReporter(os.Stdout)
	} else {
		obs = newConsoleReporter(a.log)
	}

	runner := pipeline.NewRunner(a.log, obs, a.cfg.Verbose)
	opts := job.Options{
		OutputDir:    a.cfg.OutputDir,
		Format:       f,
		Settings:     settings,
		SkipExisting: a.cfg.SkipExisting,
	}
	// Subscribe before Start; a signal arriving early stays queued.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := runner.Start(ctx, items, opts, t); err != nil {
		return err
	}
	defer runner.CleanupTemp()
	defer forwardCancel(sigCh, a.log, runner.Cancel)()

	s := runner.Wait()
	switch {
	case s.Cancelled:
		return &exitError{code: exitCancelled}
	case s.Failed > 0:
		return &exitError{code: exitFailure}
	}
	return nil
}

// forwardCancel calls cancel on the first signal from sigCh, including one
// already queued. The returned func stops the forwarder.
func forwardCancel(sigCh <-chan os.Signal, log *logging.Logger, cancel func()) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			log.Warn("Received interrupt, stopping…")
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func formatList(formats []codec.Format) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = strings.TrimPrefix(f.Ext(), ".")
	}
	return strings.Join(names, ", ")
}
