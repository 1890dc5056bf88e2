package images

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// PDFImageType maps a decoder format name onto the PDF writer's image type
func PDFImageType(format string) (string, error) {
	switch format {
	case "jpeg", "jpg":
		return "JPG", nil
	case "png":
		return "PNG", nil
	case "gif":
		return "GIF", nil
	default:
		return "", fmt.Errorf("%w: %s cannot be embedded without normalization", ErrDecode, format)
	}
}

// CheckEmbeddable registers data on a scratch PDF so that encodings the PDF
// writer refuses (interlaced or 16-bit PNG, for example) are caught before
// they reach a real document, where the writer's error would be sticky.
func CheckEmbeddable(data []byte, format string) error {
	imageType, err := PDFImageType(format)
	if err != nil {
		return err
	}

	scratch := fpdf.New("P", "pt", "A4", "")
	scratch.RegisterImageOptionsReader("trial", fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
	if err := scratch.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
