package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/naming"
	"github.com/backmassage/pixmaster/internal/tool"
)

// Upscale enlarges each input with realesrgan or waifu2x.
type Upscale struct {
	*Env
}

// NewUpscale returns the Upscale transform.
func NewUpscale(env *Env) *Upscale { return &Upscale{Env: env} }

func (u *Upscale) Name() string { return "upscale" }

func (u *Upscale) Formats() []codec.Format { return toolFormats }

func (u *Upscale) Schema() job.Schema {
	return job.Schema{
		job.KeyFamily: {Choices: familyNames()},
		job.KeyModel:  {Choices: allModelNames()},
		job.KeyScale:  {Numeric: true, Min: 1, Max: 4},
		job.KeyNoise:  {Numeric: true, Min: -1, Max: 3},
		job.KeyDevice: {Default: DeviceAuto, Choices: []string{DeviceAuto, DeviceCPU}},
	}
}

func (u *Upscale) Validate(opts job.Options) error {
	_, err := resolveUpscale(opts)
	return err
}

func (u *Upscale) OutputPath(item job.Item, opts job.Options) string {
	p, _ := resolveUpscale(opts)
	return naming.OutputPath(opts.OutputDir, item.Source, fmt.Sprintf("_upscaled%dx", p.scale), opts.Format)
}

func (u *Upscale) Process(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
	p, err := resolveUpscale(opts)
	if err != nil {
		return job.Outcome{}, err
	}
	out := u.OutputPath(item, opts)
	if err := runTool(ctx, u.Env, p, item.Source, out, opts); err != nil {
		return job.Outcome{}, err
	}
	return job.Outcome{OutputPath: out}, nil
}

// UpscaleInPlace runs the tool on an existing file and replaces it with the
// result. Used by Convert's post-process step.
func (u *Upscale) UpscaleInPlace(ctx context.Context, path string, f codec.Format, opts job.Options) error {
	p, err := resolveUpscale(opts)
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), ".pixmaster-up-"+filepath.Base(path))
	defer os.Remove(tmp)

	if _, err := tool.Resolve(p.family.Executable(u.ToolsDir)); err != nil {
		return err
	}
	if err := invokeWithRetry(ctx, u.Env, p, path, tmp, f); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Denoise removes noise at 1x with the waifu2x cunet model.
type Denoise struct {
	*Env
}

// NewDenoise returns the Denoise transform.
func NewDenoise(env *Env) *Denoise { return &Denoise{Env: env} }

func (d *Denoise) Name() string { return "denoise" }

func (d *Denoise) Formats() []codec.Format { return toolFormats }

func (d *Denoise) Schema() job.Schema {
	var models []string
	for _, m := range Waifu2x.Models {
		if m.Supports(1) {
			models = append(models, m.Name)
		}
	}
	return job.Schema{
		job.KeyNoise:  {Default: "1", Numeric: true, Min: Waifu2x.NoiseMin, Max: Waifu2x.NoiseMax},
		job.KeyModel:  {Default: models[0], Choices: models},
		job.KeyDevice: {Default: DeviceAuto, Choices: []string{DeviceAuto, DeviceCPU}},
	}
}

func (d *Denoise) params(opts job.Options) (upscaleParams, error) {
	return resolveUpscale(opts.With(job.KeyFamily, Waifu2x.Name).With(job.KeyScale, "1"))
}

func (d *Denoise) Validate(opts job.Options) error {
	_, err := d.params(opts)
	return err
}

func (d *Denoise) OutputPath(item job.Item, opts job.Options) string {
	return naming.OutputPath(opts.OutputDir, item.Source, "_denoised1x", opts.Format)
}

func (d *Denoise) Process(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
	p, err := d.params(opts)
	if err != nil {
		return job.Outcome{}, err
	}
	out := d.OutputPath(item, opts)
	if err := runTool(ctx, d.Env, p, item.Source, out, opts); err != nil {
		return job.Outcome{}, err
	}
	return job.Outcome{OutputPath: out}, nil
}

// nativeInputs are the extensions the ncnn tools decode themselves.
var nativeInputs = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// runTool checks the executable, prepares the input and runs the tool.
func runTool(ctx context.Context, env *Env, p upscaleParams, src, out string, opts job.Options) error {
	if _, err := tool.Resolve(p.family.Executable(env.ToolsDir)); err != nil {
		return err
	}

	in := src
	if !nativeInputs[strings.ToLower(filepath.Ext(src))] {
		staged, err := stageInput(ctx, env, src, opts)
		if err != nil {
			return err
		}
		defer os.Remove(staged)
		in = staged
	}

	env.Log.Debug(env.Verbose, "%s %s x%d (noise %d, cpu %v)", p.family.Binary, p.model.Name, p.scale, p.noise, p.cpu)
	return invokeWithRetry(ctx, env, p, in, out, opts.Format)
}

// stageInput decodes an input the tool cannot read (PSD, PDF, BMP, ...) and
// writes it as PNG into the run's scratch directory.
func stageInput(ctx context.Context, env *Env, src string, opts job.Options) (string, error) {
	img, err := env.decoder(opts.TempDir).Decode(ctx, src, opts.Int(job.KeyDPI))
	if err != nil {
		return "", job.Fail(job.ReasonConversionError, err)
	}
	dir := opts.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "stage-*.png")
	if err != nil {
		return "", err
	}
	staged := f.Name()
	f.Close()
	if err := codec.Encode(img, staged, codec.PNG, codec.DefaultParams()); err != nil {
		os.Remove(staged)
		return "", err
	}
	return staged, nil
}
