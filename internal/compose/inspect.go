package compose

import (
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info summarizes a rendered document
type Info struct {
	Pages int
	Size  int64
}

// Inspect validates a PDF and counts its pages
func Inspect(rs io.ReadSeeker) (*Info, error) {
	conf := model.NewDefaultConfiguration()

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size document: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind document: %w", err)
	}

	if err := api.Validate(rs, conf); err != nil {
		return nil, fmt.Errorf("document failed validation: %w", err)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind document: %w", err)
	}

	pages, err := api.PageCount(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	return &Info{Pages: pages, Size: size}, nil
}

// InspectFile opens path and inspects it
func InspectFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	return Inspect(f)
}
