package naming

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/backmassage/pixmaster/internal/codec"
)

func TestSortNatural(t *testing.T) {
	got := []string{"img10.png", "img2.png", "img1.png"}
	SortNatural(got)
	want := []string{"img1.png", "img2.png", "img10.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortNatural = %v, want %v", got, want)
	}
}

func TestSortNatural_ByBaseName(t *testing.T) {
	got := []string{
		filepath.Join("z", "page_003.jpg"),
		filepath.Join("a", "page_12.jpg"),
		filepath.Join("m", "Page_1.jpg"),
	}
	SortNatural(got)
	want := []string{
		filepath.Join("m", "Page_1.jpg"),
		filepath.Join("z", "page_003.jpg"),
		filepath.Join("a", "page_12.jpg"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortNatural = %v, want %v", got, want)
	}
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"a2", "a10", true},
		{"a10", "a2", false},
		{"A1", "a2", true},
		{"x", "x1", true},
		{"ch1p2", "ch1p10", true},
		{"ch2", "ch10p1", true},
		{"page9", "page10", true},
		{"Scan", "scan", true},
		{"same", "same", false},
	}
	for _, tt := range tests {
		if got := NaturalLess(tt.a, tt.b); got != tt.want {
			t.Errorf("NaturalLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name   string
		source string
		suffix string
		format codec.Format
		want   string
	}{
		{"convert", "/in/a.png", "", codec.JPEG, filepath.Join("/out", "a.jpg")},
		{"upscale", "/in/photo.v2.jpeg", "_upscaled4x", codec.PNG, filepath.Join("/out", "photo.v2_upscaled4x.png")},
		{"denoise", "/in/scan.webp", "_denoised1x", codec.WEBP, filepath.Join("/out", "scan_denoised1x.webp")},
		{"pdf page", "/in/doc.pdf", SuffixPage1, codec.PNG, filepath.Join("/out", "doc_page1.png")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputPath("/out", tt.source, tt.suffix, tt.format); got != tt.want {
				t.Errorf("OutputPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGroupOutputPath(t *testing.T) {
	want := filepath.Join("/out", "chapter1_stitched.tiff")
	if got := GroupOutputPath("/out", "chapter1", codec.TIFF); got != want {
		t.Errorf("GroupOutputPath = %q, want %q", got, want)
	}
}

func TestCollisionResolver_Claim(t *testing.T) {
	cr := NewCollisionResolver()
	if err := cr.Claim("/in/a.png", "/out/a.jpg"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := cr.Claim("/in/a.png", "/out/a.jpg"); err != nil {
		t.Errorf("re-claim by owner should succeed: %v", err)
	}
	err := cr.Claim("/in/a.bmp", "/out/a.jpg")
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("second input claim error = %v, want ErrCollision", err)
	}
	if owner, ok := cr.Owner("/out/a.jpg"); !ok || owner != "/in/a.png" {
		t.Errorf("Owner = %q, %v", owner, ok)
	}
}
