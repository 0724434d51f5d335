package naming

import (
	"path/filepath"
	"strings"

	"github.com/backmassage/pixmaster/internal/codec"
)

// Output name suffixes.
const (
	SuffixStitched = "_stitched"
	SuffixPage1    = "_page1"
)

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputPath builds <outputDir>/<stem of source><suffix><format ext>.
func OutputPath(outputDir, source, suffix string, f codec.Format) string {
	return filepath.Join(outputDir, Stem(source)+suffix+f.Ext())
}

// GroupOutputPath builds <outputDir>/<group>_stitched<format ext>.
func GroupOutputPath(outputDir, group string, f codec.Format) string {
	return filepath.Join(outputDir, group+SuffixStitched+f.Ext())
}
