package transform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/naming"
)

// Orientations.
const (
	Vertical   = "vertical"
	Horizontal = "horizontal"
)

// PartialGroupError lists the members of a group that could not be opened.
// The group is still stitched from the remaining members.
type PartialGroupError struct {
	Group   string
	Skipped []string
	Errs    []error
}

func (e *PartialGroupError) Error() string {
	return fmt.Sprintf("%s: %d member(s) skipped", e.Group, len(e.Skipped))
}

func (e *PartialGroupError) Unwrap() []error { return e.Errs }

// Stitch concatenates the images of each group into one canvas.
type Stitch struct {
	*Env
}

// NewStitch returns the Stitch transform.
func NewStitch(env *Env) *Stitch { return &Stitch{Env: env} }

func (s *Stitch) Name() string { return "stitch" }

func (s *Stitch) Formats() []codec.Format { return codec.AllFormats }

func (s *Stitch) Schema() job.Schema {
	return job.Schema{
		job.KeyOrientation: {Default: Vertical, Choices: []string{Vertical, Horizontal}},
		job.KeySpacing:     {Default: "0", Numeric: true, Min: -10000, Max: 10000},
		job.KeyDPI:         {Default: fmt.Sprint(codec.DefaultDPI), Numeric: true, Min: 72, Max: 600},
	}
}

func (s *Stitch) Validate(job.Options) error { return nil }

func (s *Stitch) OutputPath(item job.Item, opts job.Options) string {
	return naming.GroupOutputPath(opts.OutputDir, item.Name(), opts.Format)
}

func (s *Stitch) Process(ctx context.Context, item job.Item, opts job.Options) (job.Outcome, error) {
	members, err := groupMembers(item)
	if err != nil {
		return job.Outcome{}, err
	}

	dec := s.decoder(opts.TempDir)
	imgs := make([]image.Image, 0, len(members))
	partial := &PartialGroupError{Group: item.Name()}
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return job.Outcome{}, err
		}
		img, err := dec.Decode(ctx, m, opts.Int(job.KeyDPI))
		if err != nil {
			s.Log.Warn("  Skipping %s: %v", filepath.Base(m), err)
			partial.Skipped = append(partial.Skipped, m)
			partial.Errs = append(partial.Errs, err)
			continue
		}
		imgs = append(imgs, img)
	}
	if len(imgs) == 0 {
		return job.Outcome{}, job.Fail(job.ReasonNoValidImages, errors.Join(partial.Errs...))
	}

	vertical := opts.Get(job.KeyOrientation) != Horizontal
	canvas := Compose(imgs, vertical, opts.Int(job.KeySpacing), !opts.Format.SupportsAlpha())
	imgs = nil

	out := s.OutputPath(item, opts)
	if err := codec.Encode(canvas, out, opts.Format, codec.DefaultParams()); err != nil {
		return job.Outcome{}, err
	}

	outcome := job.Outcome{OutputPath: out, SkippedMembers: partial.Skipped}
	if len(partial.Skipped) > 0 {
		outcome.Partial = partial
	}
	return outcome, nil
}

// groupMembers lists a folder group in natural order, or returns an
// explicit selection as given.
func groupMembers(item job.Item) ([]string, error) {
	if len(item.Members) > 0 {
		return item.Members, nil
	}
	if !item.Dir {
		return []string{item.Source}, nil
	}
	entries, err := os.ReadDir(item.Source)
	if err != nil {
		return nil, err
	}
	var members []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if codec.IsSupportedInput(e.Name()) {
			members = append(members, filepath.Join(item.Source, e.Name()))
		}
	}
	naming.SortNatural(members)
	return members, nil
}

// CanvasSize returns the stitched canvas dimensions: the largest cross-axis
// extent by the summed main-axis extents plus spacing between members.
// Both sides are at least 1px, whatever the spacing.
func CanvasSize(sizes []image.Point, vertical bool, spacing int) image.Point {
	var cross, main int
	for _, sz := range sizes {
		if vertical {
			cross = max(cross, sz.X)
			main += sz.Y
		} else {
			cross = max(cross, sz.Y)
			main += sz.X
		}
	}
	if len(sizes) > 1 {
		main += spacing * (len(sizes) - 1)
	}
	cross, main = max(cross, 1), max(main, 1)
	if vertical {
		return image.Pt(cross, main)
	}
	return image.Pt(main, cross)
}

// Compose draws imgs one after another along the main axis, centred on the
// cross axis. Opaque canvases start black, others transparent.
func Compose(imgs []image.Image, vertical bool, spacing int, opaque bool) *image.NRGBA {
	sizes := make([]image.Point, len(imgs))
	for i, img := range imgs {
		sizes[i] = img.Bounds().Size()
	}
	size := CanvasSize(sizes, vertical, spacing)

	bg := color.Color(color.Transparent)
	if opaque {
		bg = color.Black
	}
	canvas := imaging.New(size.X, size.Y, bg)

	offset := 0
	for i, img := range imgs {
		b := img.Bounds()
		var at image.Point
		if vertical {
			at = image.Pt((size.X-sizes[i].X)/2, offset)
			offset += sizes[i].Y + spacing
		} else {
			at = image.Pt(offset, (size.Y-sizes[i].Y)/2)
			offset += sizes[i].X + spacing
		}
		draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(sizes[i])}, img, b.Min, draw.Over)
	}
	return canvas
}
