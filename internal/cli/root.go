package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyget/dyget/internal/core/config"
	"github.com/dyget/dyget/internal/core/downloader"
	"github.com/dyget/dyget/internal/core/extractor"
	"github.com/dyget/dyget/internal/core/i18n"
	"github.com/dyget/dyget/internal/core/version"
)

var (
	output    string
	info      bool
	inputFile string
	visible   bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "dyget [share text]",
	Short: "Download videos and image posts from Douyin share links",
	Long: `Resolve a Douyin share link (or a whole pasted share message) and
download the post: videos are saved as .mp4, image posts as a .zip.

Examples:
  dyget https://v.douyin.com/iRNBho6u/
  dyget "7.43 复制打开抖音，看看【作品】 https://v.douyin.com/iRNBho6u/ Xyz:/"
  dyget --info https://www.douyin.com/video/7301234567890123456
  dyget -f links.txt`,
	Version: version.Version,
	Args:    cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ConfigureLogging(logLevel)
	},
	Run: func(cmd *cobra.Command, args []string) {
		// Batch mode: read share texts from file
		if inputFile != "" {
			if err := runBatch(cmd.Context(), inputFile); err != nil {
				exitWithError(err)
			}
			return
		}

		if len(args) == 0 {
			cmd.Help()
			return
		}
		// Unquoted share messages arrive split on whitespace
		if err := runDownload(cmd.Context(), strings.Join(args, " ")); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "output file or directory")
	rootCmd.Flags().BoolVar(&info, "info", false, "show post info without downloading")
	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "", "read share links from file (one per line)")
	rootCmd.PersistentFlags().BoolVar(&visible, "visible", false, "show browser window (for debugging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// ConfigureLogging sets the logrus level. An empty level falls back to the
// configured one.
func ConfigureLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = config.LoadOrDefault().LogLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
	os.Exit(1)
}

// loadConfig loads the config and applies command-line overrides.
func loadConfig() *config.Config {
	cfg := config.LoadOrDefault()
	if visible {
		cfg.Browser.Visible = true
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = config.DefaultDownloadDir()
	}
	return cfg
}

// resolve matches input against the registry and extracts the post.
func resolve(ctx context.Context, cfg *config.Config, t *i18n.Translations, input string) (extractor.Media, error) {
	if !config.Exists() {
		fmt.Fprintln(os.Stderr, color.YellowString("%s %s", t.Server.NoConfigWarning, t.Server.RunInitHint))
	}

	if _, err := extractor.RegisterDefaults(cfg); err != nil {
		return nil, err
	}
	ext := extractor.Match(input)
	if ext == nil {
		return nil, errors.New(t.Errors.UnsupportedURL)
	}

	fmt.Fprintf(os.Stderr, "  %s...\n", t.Download.Resolving)
	media, err := ext.Extract(ctx, input)
	if err != nil {
		return nil, localizeError(err, t)
	}
	return media, nil
}

func runDownload(ctx context.Context, input string) error {
	cfg := loadConfig()
	t := i18n.T(cfg.Language)

	media, err := resolve(ctx, cfg, t, input)
	if err != nil {
		return err
	}
	if info {
		printInfo(os.Stdout, media, t)
		return nil
	}
	return download(ctx, cfg, t, media)
}

func download(ctx context.Context, cfg *config.Config, t *i18n.Translations, media extractor.Media) error {
	dir := cfg.OutputDir
	if output != "" {
		if isDirTarget(output) {
			dir = output
		} else {
			dir = filepath.Dir(output)
		}
	}

	dl, err := downloader.New(downloader.Options{Dir: dir, UserAgent: cfg.Douyin.UserAgent})
	if err != nil {
		return err
	}
	defer dl.Close()

	bar := newProgressPrinter(os.Stderr, t.Download.Downloading)
	artifact, err := dl.Media(ctx, media, bar.Update)
	bar.Done()
	if err != nil {
		return fmt.Errorf("%s: %w", t.Download.Failed, err)
	}

	dst := outputPath(dir, output, media, filepath.Ext(artifact.FileName))
	if err := os.Rename(artifact.Path, dst); err != nil {
		return err
	}

	fmt.Printf("  %s %s %s\n", color.GreenString("✓"), t.Download.FileSaved, dst)
	return nil
}

// isDirTarget reports whether the -o value names a directory.
func isDirTarget(path string) bool {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return true
	}
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// outputPath picks the final file path: an explicit -o file wins, otherwise
// the post title names the file inside dir. Existing files are not overwritten.
func outputPath(dir, explicit string, media extractor.Media, ext string) string {
	if explicit != "" && !isDirTarget(explicit) {
		return explicit
	}

	name := extractor.SanitizeFilename(media.GetTitle())
	if name == "" {
		switch media.Type() {
		case extractor.MediaTypeImage:
			name = downloader.ImageDownloadPrefix()
		default:
			name = strings.TrimSuffix(downloader.VideoDownloadName(), ".mp4")
		}
	}
	return uniquePath(filepath.Join(dir, name+ext))
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// localizeError swaps a typed resolution error for its translated message,
// keeping the cause for debug logs.
func localizeError(err error, t *i18n.Translations) error {
	var de *extractor.DouyinError
	if !errors.As(err, &de) {
		return err
	}
	log.WithError(err).Debug("resolution failed")
	return errors.New(t.Errors.ForCode(string(de.Code)))
}

func runBatch(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var inputs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	failed := 0
	for i, input := range inputs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Printf("\n  [%d/%d] %s\n", i+1, len(inputs), input)
		if err := runDownload(ctx, input); err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("  %v", err))
			failed++
		}
	}

	fmt.Printf("\n  %d/%d succeeded\n", len(inputs)-failed, len(inputs))
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(inputs))
	}
	return nil
}
