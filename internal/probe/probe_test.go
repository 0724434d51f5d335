package probe

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/backmassage/pixmaster/internal/codec"
)

func TestProbe_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	pr, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if pr.Kind != codec.KindRaster || pr.Format != "png" {
		t.Errorf("Kind/Format = %v/%q", pr.Kind, pr.Format)
	}
	if pr.Width != 64 || pr.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", pr.Width, pr.Height)
	}
	if !pr.HasAlpha || pr.ColorModel != "nrgba" {
		t.Errorf("ColorModel = %q HasAlpha = %v", pr.ColorModel, pr.HasAlpha)
	}
	if pr.MultiPage() || pr.Pages != 1 {
		t.Errorf("Pages = %d", pr.Pages)
	}
	if pr.Size <= 0 {
		t.Errorf("Size = %d", pr.Size)
	}
}

func TestProbe_JPEGHasNoAlpha(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	pr, err := Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if pr.HasAlpha {
		t.Errorf("JPEG reported alpha (model %s)", pr.ColorModel)
	}
}

func TestProbe_PDFPageCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	if err := codec.Encode(image.NewNRGBA(image.Rect(0, 0, 20, 20)), path, codec.PDF, codec.DefaultParams()); err != nil {
		t.Fatal(err)
	}
	pr, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if pr.Pages != 1 || pr.MultiPage() {
		t.Errorf("Pages = %d, want 1", pr.Pages)
	}
}

func TestProbe_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Probe(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := Probe(dir); err == nil {
		t.Error("directory should fail")
	}
	txt := filepath.Join(dir, "notes.txt")
	os.WriteFile(txt, []byte("x"), 0o644)
	if _, err := Probe(txt); err == nil {
		t.Error("unsupported extension should fail")
	}
	bad := filepath.Join(dir, "bad.png")
	os.WriteFile(bad, []byte("garbage"), 0o644)
	if _, err := Probe(bad); err == nil {
		t.Error("corrupt header should fail")
	}
}

func TestModelHasAlpha_Palette(t *testing.T) {
	opaque := color.Palette{color.Black, color.White}
	if ModelHasAlpha(opaque) {
		t.Error("opaque palette reported alpha")
	}
	withClear := color.Palette{color.Black, color.Transparent}
	if !ModelHasAlpha(withClear) {
		t.Error("palette with a transparent entry should report alpha")
	}
	if ColorModelName(opaque) != "paletted" {
		t.Errorf("ColorModelName(palette) = %q", ColorModelName(opaque))
	}
}
