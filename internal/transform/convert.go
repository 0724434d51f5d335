package transform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/naming"
	"github.com/backmassage/pixmaster/internal/probe"
)

// Convert re-encodes each input (raster, PSD composite or first PDF page)
// to the target format, optionally upscaling the result.
type Convert struct {
	*Env
	upscale *Upscale
}

// NewConvert returns the Convert transform.
func NewConvert(env *Env) *Convert {
	return &Convert{Env: env, upscale: NewUpscale(env)}
}

func (c *Convert) Name() string { return "convert" }

func (c *Convert) Formats() []codec.Format { return codec.AllFormats }

func (c *Convert) Schema() job.Schema {
	return job.Schema{
		job.KeyQuality:     {Default: codec.QualityHigh, Choices: codec.QualityLevels},
		job.KeyCompression: {Default: codec.CompressionNormal, Choices: codec.CompressionLevels},
		job.KeyDPI:         {Default: strconv.Itoa(codec.DefaultDPI), Numeric: true, Min: 72, Max: 600},
		job.KeyUpscale:     {Default: "off", Choices: []string{"on", "off"}},
		job.KeyFamily:      {Choices: familyNames()},
		job.KeyModel:       {Choices: allModelNames()},
		job.KeyScale:       {Numeric: true, Min: 1, Max: 4},
		job.KeyDevice:      {Default: DeviceAuto, Choices: []string{DeviceAuto, DeviceCPU}},
	}
}

func (c *Convert) Validate(opts job.Options) error {
	if !opts.Bool(job.KeyUpscale) {
		return nil
	}
	_, err := resolveUpscale(opts)
	return err
}

// OutputPath marks multi-page PDFs with a page suffix; only page 1 is used.
func (c *Convert) OutputPath(item job.Item, opts job.Options) string {
	suffix := ""
	if codec.KindOf(item.Source) == codec.KindPDF {
		if pr, err := probe.Probe(item.Source); err == nil && pr.MultiPage() {
			suffix = naming.SuffixPage1
		}
	}
	return naming.OutputPath(opts.OutputDir, item.Source, suffix, opts.Format)
}

func (c *Convert) Process(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
	params, err := codec.ResolveParams(opts.Get(job.KeyQuality), opts.Get(job.KeyCompression))
	if err != nil {
		return job.Outcome{}, err
	}

	img, err := c.decoder(opts.TempDir).Decode(ctx, item.Source, opts.Int(job.KeyDPI))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return job.Outcome{}, ctxErr
		}
		return job.Outcome{}, job.Fail(job.ReasonConversionError, err)
	}

	out := c.OutputPath(item, opts)
	if out != naming.OutputPath(opts.OutputDir, item.Source, "", opts.Format) {
		c.Log.Warn("  %s has several pages; only page 1 is converted", item.Name())
	}

	if err := codec.Encode(img, out, opts.Format, params); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return job.Outcome{}, job.Fail(job.ReasonNotWritable, err)
		}
		return job.Outcome{}, err
	}
	img = nil // release before the tool run

	if opts.Bool(job.KeyUpscale) {
		if !isToolFormat(opts.Format) {
			c.Log.Warn("  Upscale skipped: not available for %s output", opts.Format)
		} else if err := c.upscale.UpscaleInPlace(ctx, out, opts.Format, opts); err != nil {
			os.Remove(out)
			return job.Outcome{}, fmt.Errorf("post-process upscale: %w", err)
		}
	}
	return job.Outcome{OutputPath: out}, nil
}
