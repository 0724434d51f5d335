package transform

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/tool"
)

func TestConvert_PNGToJPEG(t *testing.T) {
	in := t.TempDir()
	src := writePNG(t, in, "photo.png", 32, 16, color.NRGBA{10, 200, 30, 255})
	out := filepath.Join(t.TempDir(), "nested", "out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}

	c := NewConvert(testEnv(t.TempDir()))
	o, err := c.Schema().Apply(job.Options{OutputDir: out, Format: codec.JPEG})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(o); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	res, err := c.Process(context.Background(), job.NewItem(src), o)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if want := filepath.Join(out, "photo.jpg"); res.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", res.OutputPath, want)
	}
	if got := decodeSize(t, res.OutputPath); got != image.Pt(32, 16) {
		t.Errorf("size = %v, want (32,16)", got)
	}
}

func TestConvert_PSDToPNG(t *testing.T) {
	src, err := filepath.Abs(filepath.Join("testdata", "layered.psd"))
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	c := NewConvert(testEnv(t.TempDir()))
	o, err := c.Schema().Apply(job.Options{OutputDir: out, Format: codec.PNG})
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Process(context.Background(), job.NewItem(src), o)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if want := filepath.Join(out, "layered.png"); res.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", res.OutputPath, want)
	}
	if got := decodeSize(t, res.OutputPath); got != image.Pt(64, 64) {
		t.Errorf("size = %v, want (64,64)", got)
	}
}

func TestConvert_CorruptInput(t *testing.T) {
	src := writeFile(t, t.TempDir(), "broken.png", "definitely not a png")
	c := NewConvert(testEnv(t.TempDir()))
	o, _ := c.Schema().Apply(job.Options{OutputDir: t.TempDir(), Format: codec.PNG})

	_, err := c.Process(context.Background(), job.NewItem(src), o)
	if got := job.ReasonOf(err); got != job.ReasonConversionError {
		t.Errorf("ReasonOf = %q, want %q", got, job.ReasonConversionError)
	}
	var de *codec.DecodeError
	if !errors.As(err, &de) {
		t.Errorf("error should wrap *codec.DecodeError, got %v", err)
	}
}

func TestConvert_ValidateOnlyChecksUpscaleWhenEnabled(t *testing.T) {
	c := NewConvert(testEnv(t.TempDir()))
	base := job.Options{OutputDir: t.TempDir(), Format: codec.PNG, Settings: map[job.Key]string{
		"family": "realesrgan",
		"device": "cpu",
	}}
	o, err := c.Schema().Apply(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(o); err != nil {
		t.Errorf("Validate with upscale off = %v, want nil", err)
	}
	var ce *job.ConfigurationError
	if err := c.Validate(o.With(job.KeyUpscale, "on")); !errors.As(err, &ce) {
		t.Errorf("Validate with upscale on = %v, want *job.ConfigurationError", err)
	}
}

func TestConvert_UpscaleSkippedForNonToolFormat(t *testing.T) {
	src := writePNG(t, t.TempDir(), "a.png", 8, 8, color.NRGBA{1, 2, 3, 255})
	// No tools installed: the upscale step must not run for BMP.
	c := NewConvert(testEnv(t.TempDir()))
	o, _ := c.Schema().Apply(job.Options{OutputDir: t.TempDir(), Format: codec.BMP, Settings: map[job.Key]string{"upscale": "on"}})
	res, err := c.Process(context.Background(), job.NewItem(src), o)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := decodeSize(t, res.OutputPath); got != image.Pt(8, 8) {
		t.Errorf("size = %v, want (8,8)", got)
	}
}

func TestConvert_UpscaleFailureRemovesOutput(t *testing.T) {
	src := writePNG(t, t.TempDir(), "a.png", 8, 8, color.NRGBA{1, 2, 3, 255})
	out := t.TempDir()
	c := NewConvert(testEnv(t.TempDir()))
	o, _ := c.Schema().Apply(job.Options{OutputDir: out, Format: codec.PNG, Settings: map[job.Key]string{"upscale": "on"}})

	_, err := c.Process(context.Background(), job.NewItem(src), o)
	var nf *tool.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *tool.NotFoundError", err)
	}
	if _, err := os.Stat(filepath.Join(out, "a.png")); !os.IsNotExist(err) {
		t.Error("converted output should be removed when the upscale step fails")
	}
}

func TestUpscale_MissingTool(t *testing.T) {
	src := writePNG(t, t.TempDir(), "a.png", 4, 4, color.NRGBA{1, 2, 3, 255})
	u := NewUpscale(testEnv(filepath.Join(t.TempDir(), "no-tools")))
	o, _ := u.Schema().Apply(job.Options{OutputDir: t.TempDir(), Format: codec.PNG})

	_, err := u.Process(context.Background(), job.NewItem(src), o)
	var nf *tool.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *tool.NotFoundError", err)
	}
}

func TestUpscale_OutputPath(t *testing.T) {
	u := NewUpscale(testEnv(t.TempDir()))
	o, _ := u.Schema().Apply(job.Options{OutputDir: "/out", Format: codec.WEBP, Settings: map[job.Key]string{"model": "realesr-animevideov3", "scale": "2"}})
	got := u.OutputPath(job.NewItem("/in/cel.png"), o)
	if want := filepath.Join("/out", "cel_upscaled2x.webp"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
}
