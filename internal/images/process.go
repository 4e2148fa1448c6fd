// Package images normalises product photos and keeps them on local disk
// for the storefront to serve.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// Size is the edge length of every stored image.
	Size = 800

	// MaxUploadBytes caps the original file, before processing.
	MaxUploadBytes = 5 << 20

	jpegQuality = 85
)

var (
	ErrTooLarge        = errors.New("image must be smaller than 5MB")
	ErrUnsupportedType = errors.New("please upload a JPEG, PNG, WebP or GIF image")
	ErrUndecodable     = errors.New("image could not be decoded")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Process reads an uploaded image and returns it as an 800x800 JPEG,
// centre-cropped to a square first so nothing is stretched.
func Process(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(raw) > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	if !allowedTypes[http.DetectContentType(raw)] {
		return nil, ErrUnsupportedType
	}

	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	return encode(imaging.Fill(src, Size, Size, imaging.Center, imaging.Lanczos))
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// IsNormalised reports whether data is already a Size x Size JPEG.
func IsNormalised(data []byte) bool {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil && format == "jpeg" && cfg.Width == Size && cfg.Height == Size
}
