package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/menta2k/imagesort/internal/config"
	"github.com/menta2k/imagesort/internal/logging"
	"github.com/menta2k/imagesort/pkg/layout"
	"github.com/menta2k/imagesort/pkg/server"
)

// imagesort-serve answers random image requests from the converted folders
// in the working directory.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "imagesort-serve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, _, err := config.Load(root)
	if err != nil {
		return err
	}
	if addr := strings.TrimSpace(os.Getenv("IMAGESORT_ADDR")); addr != "" {
		cfg.Serve.Addr = addr
	}
	if base := strings.TrimSpace(os.Getenv("IMAGESORT_BASE_URL")); base != "" {
		cfg.Serve.BaseURL = base
	}

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}

	l := layout.New(root)
	srv := server.New(server.Options{
		ImageDir:     l.ImageDir(),
		ManifestPath: l.Manifest(),
		BaseURL:      cfg.Serve.BaseURL,
		CacheTTL:     ttl,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, cfg.Serve.Addr); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
