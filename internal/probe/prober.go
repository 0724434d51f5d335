package probe

import (
	"fmt"
	"image"
	"os"

	"github.com/backmassage/pixmaster/internal/codec"
)

// Probe stats path and reads just enough of it to fill a ProbeResult.
func Probe(path string) (*ProbeResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("probe %q: is a directory", path)
	}

	pr := &ProbeResult{
		Path:  path,
		Kind:  codec.KindOf(path),
		Size:  info.Size(),
		Pages: 1,
	}

	switch pr.Kind {
	case codec.KindPDF:
		pr.Format = "pdf"
		n, err := codec.PageCount(path)
		if err != nil {
			return nil, fmt.Errorf("probe %q: %w", path, err)
		}
		pr.Pages = n
	case codec.KindPSD:
		pr.Format = "psd"
	case codec.KindRaster:
		if err := probeRaster(pr); err != nil {
			return nil, fmt.Errorf("probe %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("probe %q: unsupported input type", path)
	}
	return pr, nil
}

func probeRaster(pr *ProbeResult) error {
	f, err := os.Open(pr.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return err
	}
	pr.Format = format
	pr.Width = cfg.Width
	pr.Height = cfg.Height
	pr.ColorModel = ColorModelName(cfg.ColorModel)
	pr.HasAlpha = ModelHasAlpha(cfg.ColorModel)
	return nil
}
