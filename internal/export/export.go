package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/setlist/internal/compose"
	"github.com/lehigh-university-libraries/setlist/internal/models"
	"github.com/lehigh-university-libraries/setlist/internal/report"
	"github.com/lehigh-university-libraries/setlist/internal/retrieval"
)

// Retriever produces one outcome per item, in input order
type Retriever interface {
	RetrieveAll(ctx context.Context, items []models.Item) []retrieval.Outcome
}

// Options controls where and how documents are written
type Options struct {
	OutputDir  string
	Prefix     string
	Document   compose.Options
	Verify     bool
	ReportPath string
}

// Result describes a finished export
type Result struct {
	RunID    string
	Path     string
	Pages    int
	Bytes    int64
	Outcomes []retrieval.Outcome
	Report   *report.Report
}

// Failed returns the outcomes that did not produce a page
func (r *Result) Failed() []retrieval.Outcome {
	var failed []retrieval.Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Service runs the retrieve, compose and write pipeline for a setlist
type Service struct {
	retriever Retriever
	size      compose.PageSize
	opts      Options

	// Now supplies the generation time; the filename uses its local date.
	Now func() time.Time
}

// NewService creates an export service
func NewService(retriever Retriever, size compose.PageSize, opts Options) *Service {
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Service{
		retriever: retriever,
		size:      size,
		opts:      opts,
		Now:       time.Now,
	}
}

// DefaultPrefix names exported files when no prefix is configured
const DefaultPrefix = "worship_songs"

// Filename returns prefix_<YYYY-MM-DD>.pdf for the local date of t
func Filename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.pdf", prefix, t.Local().Format(time.DateOnly))
}

// Export builds the document for items and writes it atomically into the
// output directory. Nothing is written when no item produced a page or ctx
// is cancelled before the write.
func (s *Service) Export(ctx context.Context, items []models.Item) (*Result, error) {
	now := s.Now()
	ctx, result := s.start(ctx)
	logger := retrieval.Logger(ctx)
	doc, err := s.build(ctx, result, items, now)
	path := filepath.Join(s.opts.OutputDir, Filename(s.opts.Prefix, now))
	if err != nil {
		s.saveReport(ctx, result, "", now)
		return result, err
	}

	if err := ctx.Err(); err != nil {
		s.saveReport(ctx, result, "", now)
		return result, fmt.Errorf("export cancelled before writing %s: %w", path, err)
	}

	n, err := s.writeFile(doc, path)
	if err != nil {
		return result, err
	}
	result.Path = path
	result.Bytes = n

	s.saveReport(ctx, result, path, now)
	logger.Info("Setlist exported", "path", path, "pages", result.Pages, "failed", len(result.Failed()), "bytes", n)
	return result, nil
}

// Render runs the same pipeline as Export but streams the document to w
func (s *Service) Render(ctx context.Context, items []models.Item, w io.Writer) (*Result, error) {
	now := s.Now()
	ctx, result := s.start(ctx)
	doc, err := s.build(ctx, result, items, now)
	if err != nil {
		s.saveReport(ctx, result, "", now)
		return result, err
	}

	n, err := doc.WriteTo(w)
	if err != nil {
		return result, fmt.Errorf("failed to write document: %w", err)
	}
	result.Bytes = n

	s.saveReport(ctx, result, "", now)
	return result, nil
}

// start allocates the run and scopes the context logger to its run_id, so
// retrieval and composition log lines can be correlated with the report.
func (s *Service) start(ctx context.Context) (context.Context, *Result) {
	result := &Result{RunID: uuid.NewString()}
	logger := retrieval.Logger(ctx).With("run_id", result.RunID)
	return retrieval.WithLogger(ctx, logger), result
}

func (s *Service) build(ctx context.Context, result *Result, items []models.Item, now time.Time) (*compose.Document, error) {
	logger := retrieval.Logger(ctx)

	// The collection may keep changing while the export runs.
	snapshot := slices.Clone(items)
	logger.Info("Starting export", "items", len(snapshot), "page_width", s.size.Width, "page_height", s.size.Height, "unit", s.size.Unit)

	result.Outcomes = s.retriever.RetrieveAll(ctx, snapshot)

	docOpts := s.opts.Document
	if docOpts.CreatedAt.IsZero() {
		docOpts.CreatedAt = now
	}
	doc, err := compose.NewDocument(s.size, docOpts)
	if err != nil {
		return nil, err
	}

	pages, err := compose.Assemble(ctx, doc, result.Outcomes)
	result.Pages = pages
	if err != nil {
		logger.Error("Export failed", "items", len(snapshot), "error", err)
		return nil, fmt.Errorf("failed to export setlist: %w", err)
	}

	return doc, nil
}

func (s *Service) writeFile(doc *compose.Document, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+s.opts.Prefix+"_tmp_*.pdf")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	n, err := doc.WriteTo(tmpFile)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to write document: %w", err)
	}

	if s.opts.Verify {
		info, err := compose.InspectFile(tmpPath)
		if err != nil {
			return 0, err
		}
		if info.Pages != doc.Pages() {
			return 0, fmt.Errorf("document has %d pages, expected %d", info.Pages, doc.Pages())
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("failed to move document into place: %w", err)
	}
	renamed = true
	return n, nil
}

func (s *Service) saveReport(ctx context.Context, result *Result, path string, now time.Time) {
	if result == nil {
		return
	}
	result.Report = report.New(result.RunID, path, now, result.Outcomes)
	if s.opts.ReportPath == "" {
		return
	}
	if err := result.Report.Save(s.opts.ReportPath); err != nil {
		retrieval.Logger(ctx).Warn("Unable to write export report", "path", s.opts.ReportPath, "error", err)
	}
}
