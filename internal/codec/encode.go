package codec

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
)

// Encode reconciles img for f and writes it to path. The file is written
// to a temporary sibling first and renamed, so a failed encode never leaves
// a truncated output behind.
func Encode(img image.Image, path string, f Format, p Params) error {
	img = Reconcile(img, f)

	if f == PDF {
		if err := encodePDF(img, path, p); err != nil {
			return &EncodeError{Path: path, Format: f, Err: err}
		}
		return nil
	}

	err := writeAtomic(path, func(w io.Writer) error {
		return encodeTo(w, img, f, p)
	})
	if err != nil {
		return &EncodeError{Path: path, Format: f, Err: err}
	}
	return nil
}

func encodeTo(w io.Writer, img image.Image, f Format, p Params) error {
	switch f {
	case PNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(p.Compression))
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(p.Quality))
	case BMP:
		return imaging.Encode(w, img, imaging.BMP)
	case GIF:
		return imaging.Encode(w, img, imaging.GIF, imaging.GIFNumColors(256))
	case TIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	case WEBP:
		return webp.Encode(w, img, webp.Options{Quality: p.Quality, Method: 4})
	}
	return fmt.Errorf("no encoder for %s", f)
}

// outputMode is the permission of every encoded file.
const outputMode os.FileMode = 0o644

// writeAtomic writes through a temp file in the target directory.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pixmaster-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	// CreateTemp opens with 0600.
	if err := tmp.Chmod(outputMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
