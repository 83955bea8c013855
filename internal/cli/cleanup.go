package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dyget/dyget/internal/core/config"
	"github.com/dyget/dyget/internal/core/downloader"
	"github.com/dyget/dyget/internal/core/i18n"
)

var cleanupMaxAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired server artifacts from the output directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		t := i18n.T(cfg.Language)

		maxAge := cfg.Server.FileExpiry
		if cleanupMaxAge > 0 {
			maxAge = cleanupMaxAge
		}

		dl, err := downloader.New(downloader.Options{Dir: config.ExpandPath(cfg.OutputDir), Expiry: maxAge})
		if err != nil {
			return err
		}
		defer dl.Close()

		removed, err := dl.Sweep()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", color.GreenString("✓"), fmt.Sprintf(t.Server.CleanupDone, removed))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 0, "remove files older than this (default: server.file_expiry)")
	rootCmd.AddCommand(cleanupCmd)
}
