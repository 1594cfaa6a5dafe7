package main

import (
	"fmt"
	"os"

	"github.com/menta2k/imagesort"
	"github.com/menta2k/imagesort/internal/config"
	"github.com/menta2k/imagesort/internal/logging"
)

// imagesort converts data/image/photos into the landscape and portrait
// folders and rewrites data/image_lists.json, relative to the working
// directory.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "imagesort: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, cfgPath, err := config.Load(root)
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
	if cfgPath != "" {
		logger.Debug("loaded config", "path", cfgPath)
	}

	pipeline := imagesort.NewWithConfig(cfg.Converter(), logger)
	result, err := pipeline.Run(root)
	if result != nil && result.Report != nil {
		fmt.Println(result.Report.Table())
	}
	if err != nil {
		return err
	}

	fmt.Printf("image_lists.json: %d small screen, %d large screen images\n",
		len(result.Manifest.SmallScreens), len(result.Manifest.LargeScreens))
	return nil
}
