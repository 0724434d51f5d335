package codec

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/oov/psd"
	"github.com/rwcarlsen/goexif/exif"

	// Register decoders beyond the ones imaging pulls in.
	_ "golang.org/x/image/webp"
)

// SourceKind is how an input is turned into a raster.
type SourceKind int

const (
	KindUnsupported SourceKind = iota
	KindRaster
	KindPSD
	KindPDF
)

// Raster input extensions (lowercase, with leading dot).
var rasterExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// KindOf classifies path by extension.
func KindOf(path string) SourceKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".psd":
		return KindPSD
	case ext == ".pdf":
		return KindPDF
	case rasterExtensions[ext]:
		return KindRaster
	}
	return KindUnsupported
}

// IsRaster reports whether path has a raster image extension.
func IsRaster(path string) bool { return KindOf(path) == KindRaster }

// IsSupportedInput reports whether path can be decoded at all.
func IsSupportedInput(path string) bool { return KindOf(path) != KindUnsupported }

// PageRenderer rasterises one page of a PDF document.
type PageRenderer interface {
	RenderPage(ctx context.Context, path string, page, dpi int) (image.Image, error)
}

// Decoder turns any supported input into an image. PDF inputs need a
// PageRenderer; without one they fail with a DecodeError.
type Decoder struct {
	PDF PageRenderer

	// MaxDimension, when > 0, downscales images whose longest side exceeds it.
	MaxDimension int
}

// Decode dispatches on the source kind. dpi only applies to PDF pages.
func (d *Decoder) Decode(ctx context.Context, path string, dpi int) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch KindOf(path) {
	case KindPSD:
		img, err = DecodePSD(path)
	case KindPDF:
		if d.PDF == nil {
			return nil, &DecodeError{Path: path, Err: errors.New("no PDF renderer configured")}
		}
		img, err = d.PDF.RenderPage(ctx, path, 1, dpi)
		if err != nil {
			var de *DecodeError
			if !errors.As(err, &de) {
				err = &DecodeError{Path: path, Err: err}
			}
		}
	case KindRaster:
		img, err = DecodeRaster(path)
	default:
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("unsupported input type %q", filepath.Ext(path))}
	}
	if err != nil {
		return nil, err
	}
	return Fit(img, d.MaxDimension), nil
}

// DecodeRaster decodes a raster file and applies its EXIF orientation.
func DecodeRaster(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("invalid dimensions: %dx%d", b.Dx(), b.Dy())}
	}
	return applyOrientation(path, img), nil
}

// DecodePSD returns the flattened composite of all visible layers.
func DecodePSD(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	doc, _, err := psd.Decode(f, &psd.DecodeOptions{SkipLayerImage: true})
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if doc.Picker == nil {
		return nil, &DecodeError{Path: path, Err: errors.New("psd has no composite image")}
	}
	return doc.Picker, nil
}

// applyOrientation rotates/flips according to the EXIF Orientation tag.
// Files without EXIF data are returned unchanged.
func applyOrientation(path string, img image.Image) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return img
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orient, err := tag.Int(0)
	if err != nil {
		return img
	}

	switch orient {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// Fit downscales img so its longest side is at most max. max <= 0 disables.
func Fit(img image.Image, max int) image.Image {
	if max <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= max && b.Dy() <= max {
		return img
	}
	return imaging.Fit(img, max, max, imaging.Lanczos)
}
