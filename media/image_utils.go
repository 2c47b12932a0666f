package media

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/jmaka/jmakabackend/utils"
	_ "golang.org/x/image/webp"
)

const defaultJPEGQuality = 90

// encoderFormat picks the output format from the file name. Names imaging cannot encode
// (webp among them) are written as PNG.
func encoderFormat(filename string) imaging.Format {
	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		return imaging.PNG
	}
	return format
}

// encodeToFile writes img to path in the format implied by its extension.
func encodeToFile(img image.Image, path string, jpegQuality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := imaging.Encode(f, img, encoderFormat(path), imaging.JPEGQuality(jpegQuality)); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// decodeConfig reads only the image header.
func decodeConfig(path string) (image.Config, error) {
	if !utils.IsRasterImage(path) {
		return image.Config{}, ErrNotImage
	}
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %w", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, ErrNotImage
	}
	return cfg, nil
}

func openImage(path string) (image.Image, error) {
	if !utils.IsRasterImage(path) {
		return nil, ErrNotImage
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotImage, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrNotImage
	}
	return img, nil
}
