package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/setlist/internal/config"
)

// rootOptions is shared by every subcommand; cfg is populated before RunE
type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "setlist",
		Short: "Build printable setlists from a song sheet catalog",
		Long: `Setlist searches a catalog of song sheets, assembles an ordered setlist and
exports it as a single PDF with one scaled, centered sheet image per page.

Images are fetched directly when possible and through a chain of public image
relays when the original host refuses, so one stubborn host never sinks the
whole export.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}

			level, err := config.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", fmt.Sprintf("Path to YAML config file (default ./%s when present)", config.DefaultPath))
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newProbeCmd(opts))
	cmd.AddCommand(newInspectCmd())

	return cmd
}
