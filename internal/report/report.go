package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/setlist/internal/retrieval"
)

// RunInfo represents the header section of an export report
type RunInfo struct {
	RunID     string `yaml:"run_id"`
	Document  string `yaml:"document,omitempty"`
	Timestamp string `yaml:"timestamp"`
	Items     int    `yaml:"items"`
	Pages     int    `yaml:"pages"`
	Failed    int    `yaml:"failed"`
}

// Entry represents the outcome for a single item
type Entry struct {
	Index    int    `yaml:"index"`
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	ImageURL string `yaml:"image_url"`
	Strategy string `yaml:"strategy,omitempty"`
	Format   string `yaml:"format,omitempty"`
	Width    int    `yaml:"width,omitempty"`
	Height   int    `yaml:"height,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// Report is the complete export report
type Report struct {
	Run     RunInfo `yaml:"run"`
	Entries []Entry `yaml:"entries"`
}

// New builds a report with one entry per outcome, in collection order
func New(runID, document string, at time.Time, outcomes []retrieval.Outcome) *Report {
	r := &Report{
		Run: RunInfo{
			RunID:     runID,
			Document:  document,
			Timestamp: at.Format(time.RFC3339),
			Items:     len(outcomes),
		},
		Entries: make([]Entry, 0, len(outcomes)),
	}

	for _, o := range outcomes {
		entry := Entry{
			Index:    o.Index,
			ID:       o.Item.ID,
			Title:    o.Item.Title,
			ImageURL: o.Item.ImageURL,
			Strategy: o.Strategy,
		}
		if o.OK() {
			r.Run.Pages++
			entry.Format = o.Image.Format
			entry.Width = o.Image.Width
			entry.Height = o.Image.Height
		} else {
			r.Run.Failed++
			entry.Kind = string(o.Kind())
			if o.Err != nil {
				entry.Error = o.Err.Error()
			}
		}
		r.Entries = append(r.Entries, entry)
	}

	return r
}

// Failures returns only the entries that did not produce a page
func (r *Report) Failures() []Entry {
	var failed []Entry
	for _, e := range r.Entries {
		if e.Kind != "" {
			failed = append(failed, e)
		}
	}
	return failed
}

// Encode writes the report as YAML
func (r *Report) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

// Save writes the report to path, creating parent directories as needed
func (r *Report) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// Load reads a report previously written by Save
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
