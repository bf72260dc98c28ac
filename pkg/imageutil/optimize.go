package imageutil

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	// registers the WebP decoder used by imaging.Decode
	_ "golang.org/x/image/webp"
)

// Options controls downscaling and recompression
type Options struct {
	MaxWidth int
	Quality  int
}

// DefaultOptions match the limits applied to edit inputs
var DefaultOptions = Options{MaxWidth: 1024, Quality: 80}

// Optimize downscales img to at most opts.MaxWidth keeping the aspect ratio
// and re-encodes it. PNG input stays PNG, everything else (JPEG, GIF, WebP) becomes JPEG.
func Optimize(img Image, opts Options) (Image, error) {
	if len(img.Data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultOptions.MaxWidth
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions.Quality
	}

	decoded, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrDecodeImage, err)
	}

	var resized image.Image = decoded
	if decoded.Bounds().Dx() > opts.MaxWidth {
		resized = imaging.Resize(decoded, opts.MaxWidth, 0, imaging.Lanczos)
	}

	format, mimeType := imaging.JPEG, DefaultMIMEType
	if img.MIMEType == PNGMIMEType {
		format, mimeType = imaging.PNG, PNGMIMEType
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(opts.Quality)); err != nil {
		return Image{}, fmt.Errorf("failed to encode image: %w", err)
	}
	return Image{MIMEType: mimeType, Data: buf.Bytes()}, nil
}

// OptimizeDataURL is Optimize for data URL input and output
func OptimizeDataURL(dataURL string, opts Options) (string, error) {
	img, err := ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	optimized, err := Optimize(img, opts)
	if err != nil {
		return "", err
	}
	return optimized.DataURL(), nil
}
