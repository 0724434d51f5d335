package codec

import (
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Reconcile adapts the colour model of img to what f can store:
//   - formats without alpha get transparency flattened onto white;
//   - paletted inputs headed for a full-colour format are promoted to NRGBA;
//   - palette-only formats get a 256-colour dithered palette image.
func Reconcile(img image.Image, f Format) image.Image {
	if f.Paletted() {
		return toPaletted(img)
	}
	if _, ok := img.(*image.Paletted); ok {
		img = imaging.Clone(img)
	}
	if !f.SupportsAlpha() && hasAlpha(img) {
		return flatten(img, color.White)
	}
	return img
}

func hasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	case *image.NRGBA:
		return !m.Opaque()
	case *image.RGBA:
		return !m.Opaque()
	case *image.NRGBA64:
		return !m.Opaque()
	case *image.RGBA64:
		return !m.Opaque()
	}
	return true
}

func flatten(img image.Image, bg color.Color) image.Image {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

func toPaletted(img image.Image) image.Image {
	if p, ok := img.(*image.Paletted); ok {
		return p
	}
	b := img.Bounds()
	p := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette.Plan9)
	draw.FloydSteinberg.Draw(p, p.Bounds(), img, b.Min)
	return p
}
