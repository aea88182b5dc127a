package screenshot

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type format int

const (
	formatPNG format = iota
	formatJPEG
)

func formatFor(name string) (format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return formatPNG, nil
	case ".jpg", ".jpeg":
		return formatJPEG, nil
	default:
		return 0, fmt.Errorf("unsupported image extension %q (valid: .png, .jpg, .jpeg)", filepath.Ext(name))
	}
}

// writeImage encodes img to path, picking the encoder from the extension.
// The file is written under a temporary name and renamed into place so a
// failed capture never leaves a truncated image behind.
func writeImage(path string, img image.Image) error {
	f, err := formatFor(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".capture-*")
	if err != nil {
		return errors.Wrap(err, "failed to create image file")
	}
	defer os.Remove(tmp.Name())

	switch f {
	case formatJPEG:
		err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: 90})
	default:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		err = enc.Encode(tmp, img)
	}
	if err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to encode image")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to flush image file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "failed to move image into place")
	}
	return nil
}
