package codec

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/backmassage/pixmaster/internal/tool"
)

// DefaultDPI is the PDF render resolution when none is configured.
const DefaultDPI = 150

// pointsPerInch is the PDF user-space unit; zoom = dpi / pointsPerInch.
const pointsPerInch = 72.0

// Zoom returns the render scale factor for dpi.
func Zoom(dpi int) float64 {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return float64(dpi) / pointsPerInch
}

// PageCount returns the number of pages in a PDF file.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, &DecodeError{Path: path, Err: err}
	}
	return n, nil
}

// PopplerRenderer renders PDF pages with poppler's pdftoppm.
type PopplerRenderer struct {
	Invoker *tool.Invoker
	Exe     string
	Timeout time.Duration

	// TempDir holds the intermediate PNG. Empty means os.TempDir().
	TempDir string
}

// RenderPage rasterises page (1-based) of path at dpi.
func (r *PopplerRenderer) RenderPage(ctx context.Context, path string, page, dpi int) (image.Image, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if page < 1 {
		page = 1
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	scratch, err := os.MkdirTemp(r.TempDir, "pixmaster-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("pdf scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	prefix := filepath.Join(scratch, "page")
	args := []string{
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", strconv.Itoa(dpi),
		"-png",
		"-singlefile",
		path, prefix,
	}
	out := prefix + ".png"
	if _, err := r.Invoker.InvokeExpecting(ctx, r.Exe, args, r.Timeout, out); err != nil {
		return nil, err
	}

	img, err := DecodeRaster(out)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// encodePDF embeds img as a single JPEG page in a new PDF at path.
func encodePDF(img image.Image, path string, p Params) error {
	scratch, err := os.MkdirTemp(filepath.Dir(path), ".pixmaster-pdf-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	page := filepath.Join(scratch, "page.jpg")
	f, err := os.Create(page)
	if err != nil {
		return err
	}
	if err := encodeTo(f, img, JPEG, p); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	// pdfcpu appends to an existing file; build a fresh one and move it in.
	tmpPDF := filepath.Join(scratch, "out.pdf")
	if err := api.ImportImagesFile([]string{page}, tmpPDF, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return err
	}
	if err := os.Chmod(tmpPDF, outputMode); err != nil {
		return err
	}
	return os.Rename(tmpPDF, path)
}
