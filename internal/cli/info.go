package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dyget/dyget/internal/core/extractor"
	"github.com/dyget/dyget/internal/core/i18n"
)

var infoCmd = &cobra.Command{
	Use:   "info <share text>",
	Short: "Show what a share link resolves to without downloading",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		t := i18n.T(cfg.Language)

		media, err := resolve(cmd.Context(), cfg, t, strings.Join(args, " "))
		if err != nil {
			exitWithError(err)
		}
		printInfo(cmd.OutOrStdout(), media, t)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

// printInfo writes a labeled summary of media.
func printInfo(w io.Writer, media extractor.Media, t *i18n.Translations) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", bold.Sprintf("%-10s", label+":"), value)
	}

	fmt.Fprintln(w)
	field(t.Info.ID, media.GetID())
	field(t.Info.Title, media.GetTitle())
	field(t.Info.Author, media.GetUploader())
	field(t.Info.Type, string(media.Type()))
	field(t.Info.Cover, media.GetThumbnail())

	switch m := media.(type) {
	case *extractor.VideoMedia:
		field(t.Info.VideoURL, cyan.Sprint(m.URL))
		if m.Degraded {
			fmt.Fprintf(w, "  %s\n", color.New(color.FgYellow).Sprint(t.Info.Degraded))
		}
	case *extractor.ImageMedia:
		fmt.Fprintf(w, "  %s\n", bold.Sprintf("%s (%d):", t.Info.Images, len(m.Images)))
		for i, img := range m.Images {
			size := ""
			if img.Width > 0 && img.Height > 0 {
				size = fmt.Sprintf(" %dx%d", img.Width, img.Height)
			}
			fmt.Fprintf(w, "    [%d]%s %s\n", i+1, size, cyan.Sprint(img.URL))
		}
	}
	fmt.Fprintln(w)
}
