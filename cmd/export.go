package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/setlist/internal/catalog"
	"github.com/lehigh-university-libraries/setlist/internal/collection"
	"github.com/lehigh-university-libraries/setlist/internal/compose"
	"github.com/lehigh-university-libraries/setlist/internal/export"
	"github.com/lehigh-university-libraries/setlist/internal/models"
	"github.com/lehigh-university-libraries/setlist/internal/retrieval"
)

// selector is one --id or --title flag, kept in command-line order
type selector struct {
	byID  bool
	value string
}

// selectorFlag appends to a list shared by several flags so that
// `--id 3 --title grace --id 7` keeps its order
type selectorFlag struct {
	byID bool
	dst  *[]selector
}

func (f *selectorFlag) String() string { return "" }

func (f *selectorFlag) Set(v string) error {
	*f.dst = append(*f.dst, selector{byID: f.byID, value: v})
	return nil
}

func (f *selectorFlag) Type() string {
	if f.byID {
		return "id"
	}
	return "title"
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		selectors   []selector
		removals    []int
		moves       []string
		catalogPath string
		outputDir   string
		prefix      string
		reportPath  string
		pageSize    string
		orientation string
		concurrency int
		timeout     time.Duration
		noNormalize bool
		toStdout    bool
		showBar     bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a setlist as a PDF, one song sheet per page",
		Long: `Builds a setlist from catalog items and exports it as a single PDF.

Items are added in the order the --id and --title flags appear; --title picks
the first catalog item whose title contains the text. --remove then drops
positions (0-based) from the assembled list, applied in order, and --move
FROM:TO reorders what is left.

Every image is fetched through the fallback chain and normalized to JPEG on a
white background. Items that cannot be retrieved are skipped and logged; the
export fails only when no item produced a page.`,
		Example: `  # Export three songs to ./worship_songs_<date>.pdf
  setlist export --catalog songs_data.js --id 12 --id 48 --title "amazing grace" --prefix worship_songs

  # Stream to stdout with a progress bar and an outcome report
  setlist export --catalog songs.json --id 1 --id 2 --stdout --progress --report run.yaml > set.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			flags := cmd.Flags()
			if flags.Changed("catalog") {
				cfg.Catalog = catalogPath
			}
			if flags.Changed("output-dir") {
				cfg.Export.OutputDir = outputDir
			}
			if flags.Changed("prefix") {
				cfg.Export.Prefix = prefix
			}
			if flags.Changed("report") {
				cfg.Export.Report = reportPath
			}
			if flags.Changed("page-size") {
				cfg.Document.PageSize = pageSize
			}
			if flags.Changed("orientation") {
				cfg.Document.Orientation = orientation
			}
			if flags.Changed("concurrency") {
				cfg.Retrieval.Concurrency = concurrency
			}
			if flags.Changed("timeout") {
				cfg.Retrieval.Timeout = timeout
			}
			if noNormalize {
				cfg.Normalize.Enabled = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if cfg.Catalog == "" {
				return fmt.Errorf("--catalog is required")
			}
			if len(selectors) == 0 {
				return fmt.Errorf("at least one --id or --title is required")
			}

			all, err := catalog.Load(cfg.Catalog)
			if err != nil {
				return err
			}

			var view string
			setlist := collection.New()
			setlist.OnChange = func(items []models.Item) {
				view = renderSetlist(items)
				slog.Debug("Setlist changed", "items", len(items))
			}

			for _, sel := range selectors {
				item, err := pick(all, sel)
				if err != nil {
					return err
				}
				setlist.Append(item)
			}
			for _, index := range removals {
				if _, err := setlist.Remove(index); err != nil {
					return fmt.Errorf("failed to remove item: %w", err)
				}
			}
			for _, pair := range moves {
				from, to, err := parseMove(pair)
				if err != nil {
					return err
				}
				if err := setlist.Move(from, to); err != nil {
					return fmt.Errorf("failed to move item: %w", err)
				}
			}
			if setlist.Len() == 0 {
				return fmt.Errorf("setlist is empty after removals")
			}
			fmt.Fprint(cmd.ErrOrStderr(), view)

			size, err := cfg.PageSize()
			if err != nil {
				return err
			}

			chain := retrieval.NewChain(cfg.Fetcher(), cfg.Strategies(), cfg.Retrieval.Timeout)
			coordinator := retrieval.NewCoordinator(chain, cfg.Normalizer(), cfg.Retrieval.Concurrency)

			items := setlist.Items()
			if showBar {
				bar := progressbar.NewOptions(len(items),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("Retrieving images"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionThrottle(65*time.Millisecond),
					progressbar.OptionClearOnFinish(),
				)
				coordinator.OnSettled = func(retrieval.Outcome) {
					_ = bar.Add(1)
				}
			}

			service := export.NewService(coordinator, size, export.Options{
				OutputDir: cfg.Export.OutputDir,
				Prefix:    cfg.Export.Prefix,
				Verify:    cfg.Export.Verify,
				Document: compose.Options{
					Title:     cfg.Document.Title,
					Creator:   cfg.Document.Creator,
					AutoPrint: cfg.Document.AutoPrint,
				},
				ReportPath: cfg.Export.Report,
			})

			var result *export.Result
			if toStdout {
				result, err = service.Render(cmd.Context(), items, cmd.OutOrStdout())
			} else {
				result, err = service.Export(cmd.Context(), items)
			}
			if result != nil {
				printFailures(cmd.ErrOrStderr(), result.Failed())
			}
			if err != nil {
				return err
			}

			if !toStdout {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d of %d pages)\n", result.Path, result.Pages, len(items))
			}
			return nil
		},
	}

	cmd.Flags().Var(&selectorFlag{byID: true, dst: &selectors}, "id", "Add the catalog item with this id (repeatable)")
	cmd.Flags().Var(&selectorFlag{dst: &selectors}, "title", "Add the first catalog item whose title contains this text (repeatable)")
	cmd.Flags().IntSliceVar(&removals, "remove", nil, "Remove the item at this 0-based position after adding (repeatable)")
	cmd.Flags().StringArrayVar(&moves, "move", nil, "Move the item at FROM to position TO, as FROM:TO, after removals (repeatable)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog file (.json, .jsonl, .yaml, .parquet or .js)")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "Directory for the exported PDF")
	cmd.Flags().StringVar(&prefix, "prefix", export.DefaultPrefix, "Filename prefix; the file is named <prefix>_<YYYY-MM-DD>.pdf")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML report of every item outcome to this file")
	cmd.Flags().StringVar(&pageSize, "page-size", "a4", "Page size (a3, a4, a5, letter, legal)")
	cmd.Flags().StringVar(&orientation, "orientation", "portrait", "Page orientation (portrait or landscape)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 6, "Maximum images retrieved at once (0 for unbounded)")
	cmd.Flags().DurationVar(&timeout, "timeout", retrieval.DefaultAttemptTimeout, "Timeout for each retrieval attempt")
	cmd.Flags().BoolVar(&noNormalize, "no-normalize", false, "Embed images as fetched instead of re-encoding to JPEG")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Write the PDF to stdout instead of a file")
	cmd.Flags().BoolVar(&showBar, "progress", false, "Show a progress bar while retrieving")

	return cmd
}

func pick(items []models.Item, sel selector) (models.Item, error) {
	if sel.byID {
		item, ok := catalog.FindByID(items, sel.value)
		if !ok {
			return models.Item{}, fmt.Errorf("no catalog item with id %q", sel.value)
		}
		return item, nil
	}

	matches := catalog.Search(items, sel.value, 1)
	if len(matches) == 0 {
		return models.Item{}, fmt.Errorf("no catalog item with a title containing %q", sel.value)
	}
	return matches[0], nil
}

// parseMove reads a FROM:TO pair of 0-based positions
func parseMove(v string) (int, int, error) {
	fromStr, toStr, ok := strings.Cut(v, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid --move %q: expected FROM:TO", v)
	}
	from, err := strconv.Atoi(strings.TrimSpace(fromStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --move %q: %w", v, err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(toStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --move %q: %w", v, err)
	}
	return from, to, nil
}

func renderSetlist(items []models.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Setlist (%d items):\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "  %2d. %s\n", i, item)
	}
	return b.String()
}

func printFailures(w io.Writer, failed []retrieval.Outcome) {
	for _, o := range failed {
		fmt.Fprintf(w, "skipped %d. %s: %s\n", o.Index, o.Item, o.Kind())
	}
}
