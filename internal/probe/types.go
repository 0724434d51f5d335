package probe

import "github.com/backmassage/pixmaster/internal/codec"

// ProbeResult describes one input file. Width, Height and ColorModel are
// zero for PDF and PSD inputs, whose dimensions depend on rendering.
type ProbeResult struct {
	Path   string
	Kind   codec.SourceKind
	Size   int64
	Format string // decoder name: "png", "jpeg", ...

	Width      int
	Height     int
	ColorModel string
	HasAlpha   bool

	// Pages is the PDF page count; 1 for everything else.
	Pages int
}

// MultiPage reports whether only the first page of the input will be used.
func (r *ProbeResult) MultiPage() bool { return r.Pages > 1 }

// Megapixels returns the pixel count in millions (0 when unknown).
func (r *ProbeResult) Megapixels() float64 {
	return float64(r.Width) * float64(r.Height) / 1e6
}
