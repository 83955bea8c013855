package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dyget/dyget/internal/cli"
	"github.com/dyget/dyget/internal/core/config"
	"github.com/dyget/dyget/internal/core/version"
	"github.com/dyget/dyget/internal/server"
)

func main() {
	// Command-line flags
	port := flag.Int("port", 0, "HTTP listen port (default: 3000)")
	output := flag.String("output", "", "output directory for downloads")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dyget-server %s\n", version.Version)
		return
	}

	cli.ConfigureLogging(*logLevel)

	// flag > env > config file > default
	cfg := config.LoadOrDefault()
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *output != "" {
		cfg.OutputDir = *output
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to configure server")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
