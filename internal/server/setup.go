package server

import (
	"fmt"

	"github.com/dyget/dyget/internal/core/config"
	"github.com/dyget/dyget/internal/core/downloader"
	"github.com/dyget/dyget/internal/core/extractor"
)

// New builds a server from cfg: it registers the douyin extractor and
// materializes artifacts into cfg.OutputDir.
func New(cfg *config.Config) (*Server, error) {
	if _, err := extractor.RegisterDefaults(cfg); err != nil {
		return nil, fmt.Errorf("configure extractor: %w", err)
	}

	outputDir := config.ExpandPath(cfg.OutputDir)
	if outputDir == "" {
		outputDir = config.DefaultDownloadDir()
	}
	dl, err := downloader.New(downloader.Options{
		Dir:       outputDir,
		UserAgent: cfg.Douyin.UserAgent,
		Expiry:    cfg.Server.FileExpiry,
	})
	if err != nil {
		return nil, err
	}
	return NewServer(cfg, dl, nil), nil
}
