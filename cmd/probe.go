package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/setlist/internal/retrieval"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe URL",
		Short: "Run the fallback chain for one image and show every attempt",
		Example: `  # See which strategy can reach a hotlink-protected image
  setlist probe https://postfiles.pstatic.net/sheet.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("timeout") {
				cfg.Retrieval.Timeout = timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			chain := retrieval.NewChain(cfg.Fetcher(), cfg.Strategies(), cfg.Retrieval.Timeout)
			res, resolveErr := chain.Resolve(cmd.Context(), args[0])

			out := cmd.OutOrStdout()
			for i, a := range res.Attempts {
				status := "ok"
				if a.Err != nil {
					status = a.Err.Error()
				}
				fmt.Fprintf(out, "%d. %-10s %8s  %s\n   %s\n", i+1, a.Strategy, a.Duration.Round(time.Millisecond), a.Endpoint, status)
			}
			if resolveErr != nil {
				return resolveErr
			}

			img, err := cfg.Normalizer().Normalize(res.Data)
			if err != nil {
				return fmt.Errorf("retrieved %d bytes via %s but %w", len(res.Data), res.Strategy, err)
			}
			fmt.Fprintf(out, "resolved via %s: %dx%d %s, %d bytes\n", res.Strategy, img.Width, img.Height, img.Format, len(img.Data))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", retrieval.DefaultAttemptTimeout, "Per-attempt timeout")

	return cmd
}
