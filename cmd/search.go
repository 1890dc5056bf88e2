package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/setlist/internal/catalog"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var catalogPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search catalog titles",
		Long: `Lists catalog items whose title contains QUERY, ignoring case.
Without a query the first items of the catalog are listed.`,
		Example: `  # Find songs with "grace" in the title
  setlist search --catalog songs_data.js grace

  # Show the first 10 catalog entries
  setlist search --catalog songs.parquet --limit 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("catalog") {
				opts.cfg.Catalog = catalogPath
			}
			if opts.cfg.Catalog == "" {
				return fmt.Errorf("--catalog is required")
			}

			items, err := catalog.Load(opts.cfg.Catalog)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			matches := catalog.Search(items, query, limit)

			out := cmd.OutOrStdout()
			for _, item := range matches {
				fmt.Fprintf(out, "%-8s %s\n", item.ID, item.Title)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d items shown\n", len(matches), len(items))
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog file (.json, .jsonl, .yaml, .parquet or .js)")
	cmd.Flags().IntVar(&limit, "limit", catalog.DefaultSearchLimit, "Maximum number of results")

	return cmd
}
