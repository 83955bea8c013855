package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyget/dyget/internal/core/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create dyget config file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
