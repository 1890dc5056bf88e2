package images

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func transparentPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	// Left half opaque red, right half fully transparent
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	return encodePNG(t, img)
}

func TestJPEGNormalizerFlattensTransparency(t *testing.T) {
	raw := transparentPNG(t, 64, 32)

	out, err := NewJPEGNormalizer(95).Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", out.Format)
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 32, out.Height)
	assert.True(t, IsCanonical(out.Data))

	decoded, format, err := image.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	// A transparent pixel must come out white, not black
	r, g, b, _ := decoded.At(60, 16).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))

	r, g, b, _ = decoded.At(4, 16).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(60))
	assert.Less(t, b>>8, uint32(60))
}

func TestJPEGNormalizerIsIdempotent(t *testing.T) {
	n := NewJPEGNormalizer(95)

	first, err := n.Normalize(transparentPNG(t, 40, 40))
	require.NoError(t, err)

	second, err := n.Normalize(first.Data)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.Width, second.Width)
	assert.Equal(t, first.Height, second.Height)

	a, err := jpeg.Decode(bytes.NewReader(first.Data))
	require.NoError(t, err)
	b, err := jpeg.Decode(bytes.NewReader(second.Data))
	require.NoError(t, err)
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			require.Equal(t, a.At(x, y), b.At(x, y))
		}
	}
}

func TestJPEGNormalizerReencodesForeignJPEG(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 10, 20))
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 50}))
	require.False(t, IsCanonical(buf.Bytes()))

	out, err := NewJPEGNormalizer(95).Normalize(buf.Bytes())
	require.NoError(t, err)
	assert.True(t, IsCanonical(out.Data))
	assert.Equal(t, 10, out.Width)
	assert.Equal(t, 20, out.Height)
}

func TestJPEGNormalizerFormats(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 8, 6), []color.Color{color.Black, color.White})

	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, src, nil))

	var bmpBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, src))

	for name, raw := range map[string][]byte{"gif": gifBuf.Bytes(), "bmp": bmpBuf.Bytes()} {
		t.Run(name, func(t *testing.T) {
			out, err := NewJPEGNormalizer(0).Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, 8, out.Width)
			assert.Equal(t, 6, out.Height)
		})
	}
}

func TestNormalizeDecodeError(t *testing.T) {
	inputs := map[string][]byte{
		"garbage":   []byte("definitely not an image"),
		"html":      []byte("<html><body>Access denied</body></html>"),
		"truncated": transparentPNG(t, 16, 16)[:40],
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := NewJPEGNormalizer(95).Normalize(raw)
			assert.ErrorIs(t, err, ErrDecode)

			_, err = Passthrough{}.Normalize(raw)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestPassthrough(t *testing.T) {
	raw := transparentPNG(t, 30, 10)

	out, err := Passthrough{}.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "png", out.Format)
	assert.Equal(t, raw, out.Data)
	assert.Equal(t, 30, out.Width)
	assert.Equal(t, 10, out.Height)

	var bmpBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	_, err = Passthrough{}.Normalize(bmpBuf.Bytes())
	assert.ErrorIs(t, err, ErrDecode)
}

func TestIsCanonical(t *testing.T) {
	assert.False(t, IsCanonical(nil))
	assert.False(t, IsCanonical([]byte{0xFF, 0xD8}))

	tagged := tagCanonical([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	assert.True(t, IsCanonical(tagged))
	assert.Equal(t, []byte{0xFF, 0xD9}, tagged[len(tagged)-2:])
}
