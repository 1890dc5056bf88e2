package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"

	// Decoders registered with image.Decode
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultQuality matches the quality factor used for every canonical image
	DefaultQuality = 95

	// DefaultMaxPixels caps width*height before any pixel buffer is allocated
	DefaultMaxPixels = 50_000_000
)

// ErrDecode is returned when bytes cannot be interpreted as an image
var ErrDecode = errors.New("image could not be decoded")

// canonicalTag is stored in a JPEG comment segment right after SOI
var canonicalTag = []byte("setlist:canonical")

// Image is a decoded-and-encoded image ready for page composition
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Normalizer converts raw image bytes into the document's image format
type Normalizer interface {
	Normalize(raw []byte) (*Image, error)
}

// JPEGNormalizer flattens any supported raster onto white and re-encodes it as JPEG
type JPEGNormalizer struct {
	Quality    int
	Background color.Color
	MaxPixels  int
}

// NewJPEGNormalizer creates a normalizer with a white background
func NewJPEGNormalizer(quality int) *JPEGNormalizer {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &JPEGNormalizer{
		Quality:    quality,
		Background: color.White,
		MaxPixels:  DefaultMaxPixels,
	}
}

// Normalize decodes raw and re-encodes it as a tagged JPEG. Bytes already
// carrying the canonical tag are validated and returned unchanged.
func (n *JPEGNormalizer) Normalize(raw []byte) (*Image, error) {
	if _, _, err := decodeConfig(raw, pixelLimit(n.MaxPixels)); err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}

	if format == "jpeg" && IsCanonical(raw) {
		return &Image{Data: raw, Format: "jpeg", Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	background := n.Background
	if background == nil {
		background = color.White
	}

	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Over)

	quality := n.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: failed to encode jpeg: %v", ErrDecode, err)
	}

	return &Image{
		Data:   tagCanonical(buf.Bytes()),
		Format: "jpeg",
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// Passthrough validates the image and keeps the original encoding. Images the
// PDF writer cannot embed as-is go to Fallback when set and fail with
// ErrDecode otherwise.
type Passthrough struct {
	Fallback  Normalizer
	MaxPixels int
}

func (p Passthrough) Normalize(raw []byte) (*Image, error) {
	cfg, format, err := decodeConfig(raw, pixelLimit(p.MaxPixels))
	if err != nil {
		return nil, err
	}

	// DecodeConfig only reads the header; a truncated body must still fail here
	if _, _, err := image.Decode(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if err := CheckEmbeddable(raw, format); err != nil {
		if p.Fallback != nil {
			slog.Debug("Image cannot be embedded as-is, re-encoding", "format", format, "error", err)
			return p.Fallback.Normalize(raw)
		}
		return nil, err
	}

	return &Image{Data: raw, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// pixelLimit resolves a MaxPixels setting: 0 is the default, negative is unlimited
func pixelLimit(n int) int {
	if n == 0 {
		return DefaultMaxPixels
	}
	return n
}

// decodeConfig reads only the image header and rejects empty images and
// images larger than maxPixels when it is positive
func decodeConfig(raw []byte, maxPixels int) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return cfg, format, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, format, fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return cfg, format, fmt.Errorf("%w: %s image is %dx%d, above the %d pixel limit", ErrDecode, format, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, format, nil
}

// IsCanonical reports whether data is a JPEG produced by JPEGNormalizer
func IsCanonical(data []byte) bool {
	headerLen := 6 + len(canonicalTag)
	if len(data) < headerLen {
		return false
	}
	if data[0] != 0xFF || data[1] != 0xD8 || data[2] != 0xFF || data[3] != 0xFE {
		return false
	}
	segLen := int(data[4])<<8 | int(data[5])
	if segLen != 2+len(canonicalTag) {
		return false
	}
	return bytes.Equal(data[6:headerLen], canonicalTag)
}

// tagCanonical inserts a COM segment holding canonicalTag after the SOI marker
func tagCanonical(jpg []byte) []byte {
	if len(jpg) < 2 {
		return jpg
	}
	segLen := 2 + len(canonicalTag)
	out := make([]byte, 0, len(jpg)+2+segLen)
	out = append(out, jpg[:2]...)
	out = append(out, 0xFF, 0xFE, byte(segLen>>8), byte(segLen))
	out = append(out, canonicalTag...)
	out = append(out, jpg[2:]...)
	return out
}
