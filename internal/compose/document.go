package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/lehigh-university-libraries/setlist/internal/images"
	"github.com/lehigh-university-libraries/setlist/internal/retrieval"
)

// autoPrintScript opens the print dialog in viewers that run document JavaScript
const autoPrintScript = "print(true);"

// Options holds document metadata and behavior
type Options struct {
	Title     string
	Creator   string
	AutoPrint bool
	CreatedAt time.Time
}

// Document accumulates pages into a PDF. It is not safe for concurrent use;
// a single owner appends pages in order.
type Document struct {
	pdf   *fpdf.Fpdf
	size  PageSize
	pages int
}

// NewDocument creates an empty document whose pages all have the given size
func NewDocument(size PageSize, opts Options) (*Document, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("%w: %.2fx%.2f", ErrInvalidPageSize, size.Width, size.Height)
	}
	unit := size.Unit
	if unit == "" {
		unit = "mm"
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        unit,
		Size:           fpdf.SizeType{Wd: size.Width, Ht: size.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	if opts.Creator != "" {
		pdf.SetCreator(opts.Creator, true)
	}
	if !opts.CreatedAt.IsZero() {
		pdf.SetCreationDate(opts.CreatedAt)
	}
	if opts.AutoPrint {
		pdf.SetJavascript(autoPrintScript)
	}

	if pdf.Err() {
		return nil, fmt.Errorf("failed to initialize document: %w", pdf.Error())
	}

	return &Document{pdf: pdf, size: size}, nil
}

// PageSize returns the size every page is composed against
func (d *Document) PageSize() PageSize {
	return d.size
}

// Pages returns the number of pages appended so far
func (d *Document) Pages() int {
	return d.pages
}

// AddPage appends one page holding p's image at its placement. The first
// call starts the document; later calls each start a new page.
func (d *Document) AddPage(p Page) error {
	if p.Image == nil || len(p.Image.Data) == 0 {
		return fmt.Errorf("page %d has no image", d.pages+1)
	}

	imageType, err := images.PDFImageType(p.Image.Format)
	if err != nil {
		return fmt.Errorf("page %d rejected: %w", d.pages+1, err)
	}

	// The writer's errors are sticky, so anything it would refuse must be
	// caught before it touches this document.
	if err := images.CheckEmbeddable(p.Image.Data, p.Image.Format); err != nil {
		return fmt.Errorf("page %d rejected: %w", d.pages+1, err)
	}

	name := fmt.Sprintf("page-%d", d.pages+1)
	opts := fpdf.ImageOptions{ImageType: imageType}

	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(p.Image.Data))
	if d.pdf.Err() {
		return fmt.Errorf("failed to register image for page %d: %w", d.pages+1, d.pdf.Error())
	}

	d.pdf.AddPage()
	d.pdf.ImageOptions(name, p.Placement.X, p.Placement.Y, p.Placement.W, p.Placement.H, false, opts, 0, "")
	if d.pdf.Err() {
		return fmt.Errorf("failed to place image on page %d: %w", d.pages+1, d.pdf.Error())
	}

	d.pages++
	return nil
}

// WriteTo renders the finished document
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := d.pdf.Output(cw); err != nil {
		return cw.n, fmt.Errorf("failed to write document: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Assemble appends one page per successful outcome, in outcome order, and
// skips failures. An image the document refuses marks its outcome failed in
// place and is skipped too. It returns ErrAllRetrievalsFailed when no page
// was added.
func Assemble(ctx context.Context, doc *Document, outcomes []retrieval.Outcome) (int, error) {
	logger := retrieval.Logger(ctx)
	added := 0
	for i, outcome := range outcomes {
		if err := ctx.Err(); err != nil {
			return added, fmt.Errorf("document build aborted: %w", err)
		}

		if !outcome.OK() {
			logger.Debug("Skipping page for failed item", "index", outcome.Index, "id", outcome.Item.ID, "kind", outcome.Kind())
			continue
		}

		if err := doc.AddPage(ComposePage(outcome.Image, doc.PageSize())); err != nil {
			if !errors.Is(err, images.ErrDecode) {
				return added, fmt.Errorf("failed to add page for %s: %w", outcome.Item, err)
			}
			outcomes[i].Image = nil
			outcomes[i].Err = err
			logger.Warn("Image rejected by document, item will be skipped", "index", outcome.Index, "id", outcome.Item.ID, "error", err)
			continue
		}
		added++
	}

	if added == 0 {
		return 0, fmt.Errorf("%w: all %d items failed", retrieval.ErrAllRetrievalsFailed, len(outcomes))
	}

	return added, nil
}
