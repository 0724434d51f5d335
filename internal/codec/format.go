// Package codec decodes inputs (rasters, PSD composites, rendered PDF pages)
// and encodes them to one of a closed set of output formats. Every
// format-specific decision lives on [Format]: file extension, alpha and
// palette capability, and the symbolic quality/compression lookup tables.
package codec

import (
	"fmt"
	"image/png"
	"strings"
)

// Format is the closed set of output formats.
type Format int

const (
	FormatUnknown Format = iota
	PNG
	JPEG
	BMP
	GIF
	TIFF
	WEBP
	PDF
)

var formatNames = map[Format]string{
	PNG:  "PNG",
	JPEG: "JPEG",
	BMP:  "BMP",
	GIF:  "GIF",
	TIFF: "TIFF",
	WEBP: "WEBP",
	PDF:  "PDF",
}

// AllFormats lists every supported output format in display order.
var AllFormats = []Format{PNG, JPEG, BMP, GIF, TIFF, WEBP, PDF}

// ParseFormat accepts a format name or extension, case-insensitively
// ("jpg", ".JPEG", "tif").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "bmp":
		return BMP, nil
	case "gif":
		return GIF, nil
	case "tif", "tiff":
		return TIFF, nil
	case "webp":
		return WEBP, nil
	case "pdf":
		return PDF, nil
	}
	return FormatUnknown, fmt.Errorf("unsupported format %q", s)
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// Ext returns the canonical output extension with leading dot.
func (f Format) Ext() string {
	switch f {
	case JPEG:
		return ".jpg"
	case TIFF:
		return ".tiff"
	case FormatUnknown:
		return ""
	}
	return "." + strings.ToLower(f.String())
}

// ToolName is the value passed to the ncnn tools' -f flag.
func (f Format) ToolName() string {
	switch f {
	case JPEG:
		return "jpg"
	case PNG, WEBP:
		return strings.ToLower(f.String())
	}
	return ""
}

// SupportsAlpha reports whether the format can store transparency.
func (f Format) SupportsAlpha() bool {
	switch f {
	case JPEG, PDF, BMP:
		return false
	}
	return true
}

// Paletted reports whether the format is restricted to a colour palette.
func (f Format) Paletted() bool { return f == GIF }

// UsesQuality reports whether the quality table applies to the format.
func (f Format) UsesQuality() bool {
	return f == JPEG || f == WEBP || f == PDF
}

// UsesCompression reports whether the compression table applies.
func (f Format) UsesCompression() bool { return f == PNG }

// --- symbolic level tables ---

// Quality levels (JPEG, WEBP, PDF-embedded JPEG).
const (
	QualityMaximum = "Maximum"
	QualityHigh    = "High"
	QualityMedium  = "Medium"
	QualityLow     = "Low"
)

// Compression levels (PNG).
const (
	CompressionNone    = "None"
	CompressionFast    = "Fast"
	CompressionNormal  = "Normal"
	CompressionMaximum = "Maximum"
)

// QualityLevels and CompressionLevels list the symbolic names in order.
var (
	QualityLevels     = []string{QualityMaximum, QualityHigh, QualityMedium, QualityLow}
	CompressionLevels = []string{CompressionNone, CompressionFast, CompressionNormal, CompressionMaximum}
)

var qualityTable = map[string]int{
	QualityMaximum: 95,
	QualityHigh:    85,
	QualityMedium:  75,
	QualityLow:     60,
}

var compressionTable = map[string]png.CompressionLevel{
	CompressionNone:    png.NoCompression,
	CompressionFast:    png.BestSpeed,
	CompressionNormal:  png.DefaultCompression,
	CompressionMaximum: png.BestCompression,
}

// QualityValue maps a symbolic quality level to the encoder value (1-100).
func QualityValue(level string) (int, error) {
	for name, v := range qualityTable {
		if strings.EqualFold(name, level) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown quality level %q", level)
}

// CompressionValue maps a symbolic compression level to the PNG encoder level.
func CompressionValue(level string) (png.CompressionLevel, error) {
	for name, v := range compressionTable {
		if strings.EqualFold(name, level) {
			return v, nil
		}
	}
	return png.DefaultCompression, fmt.Errorf("unknown compression level %q", level)
}

// Params are the resolved encoder parameters for one encode call.
type Params struct {
	Quality     int                  // 1-100; JPEG/WEBP/PDF.
	Compression png.CompressionLevel // PNG.
}

// DefaultParams is what Stitch and the PDF page intermediate use: the
// fixed high-quality setting.
func DefaultParams() Params {
	return Params{Quality: qualityTable[QualityMaximum], Compression: png.DefaultCompression}
}

// ResolveParams turns symbolic levels into encoder parameters. Empty
// levels fall back to High quality and Normal compression.
func ResolveParams(quality, compression string) (Params, error) {
	p := Params{Quality: qualityTable[QualityHigh], Compression: png.DefaultCompression}
	if quality != "" {
		q, err := QualityValue(quality)
		if err != nil {
			return p, err
		}
		p.Quality = q
	}
	if compression != "" {
		c, err := CompressionValue(compression)
		if err != nil {
			return p, err
		}
		p.Compression = c
	}
	return p, nil
}
