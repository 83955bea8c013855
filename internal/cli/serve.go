package cli

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyget/dyget/internal/server"
)

var (
	servePort      int
	serveOutputDir string
	serveAPIKey    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start an HTTP server that resolves share links and serves the downloads.

Examples:
  dyget serve              # Start server on port 3000
  dyget serve -p 9000      # Start server on port 9000
  dyget serve -o ~/dl      # Use custom output directory

API Endpoints:
  GET    /api/health       # Health check
  POST   /api/info         # Resolve a share link
  POST   /api/download     # Materialize a resolved post
  GET    /api/cleanup      # Remove expired downloads
  POST   /api/jobs         # Queue resolve + download
  GET    /api/jobs/:id     # Job status
  GET    /api/jobs         # List jobs
  DELETE /api/jobs/:id     # Cancel or remove a job
  GET    /downloads/:file  # Fetch a materialized file`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd.Context()); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP listen port (default: 3000)")
	serveCmd.Flags().StringVarP(&serveOutputDir, "output", "o", "", "output directory for downloads")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "require this X-API-Key on API requests")

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg := loadConfig()

	// flag > env > config file > default
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveOutputDir != "" {
		cfg.OutputDir = serveOutputDir
	}
	if serveAPIKey != "" {
		cfg.Server.APIKey = serveAPIKey
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	return srv.Start()
}
