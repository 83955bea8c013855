package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dyget/dyget/internal/core/version"
	"github.com/dyget/dyget/internal/updater"
)

var checkOnly bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update dyget to the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if checkOnly {
			release, newer, err := updater.CheckUpdate(cmd.Context())
			if err != nil {
				return err
			}
			if !newer {
				fmt.Fprintf(out, "Already up to date (v%s)\n", version.Version)
				return nil
			}
			fmt.Fprintf(out, "Update available: v%s -> %s\n", version.Version, color.GreenString(release.Version()))
			return nil
		}

		installed, err := updater.Update(cmd.Context())
		if err != nil {
			return err
		}
		if installed == "" {
			fmt.Fprintf(out, "Already up to date (v%s)\n", version.Version)
			return nil
		}
		fmt.Fprintf(out, "%s Updated to %s\n", color.GreenString("✓"), installed)
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&checkOnly, "check", false, "only report whether an update is available")
	rootCmd.AddCommand(updateCmd)
}
