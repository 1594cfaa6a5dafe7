// Package imagesort sorts a folder of photos into landscape and portrait
// WebP images and publishes the result as a JSON image list.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//
//		"github.com/menta2k/imagesort"
//	)
//
//	func main() {
//		pipeline := imagesort.New()
//
//		// Create data/image/{photos,portrait,landscape} and an empty list
//		if _, err := pipeline.Init("."); err != nil {
//			log.Fatal(err)
//		}
//
//		// Convert everything in data/image/photos and rebuild the list
//		result, err := pipeline.Run(".")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Println(result.Report.Table())
//		fmt.Printf("%d landscape, %d portrait images listed\n",
//			len(result.Manifest.LargeScreens), len(result.Manifest.SmallScreens))
//	}
//
// The package ties together:
//
//  1. Layout (pkg/layout): the data/ tree, its bootstrap and the run lock
//  2. Batch (pkg/batch): classification and WebP conversion of the inputs
//  3. Manifest (pkg/manifest): the image_lists.json document
//
// Inputs are never modified. Identical files are converted once per run and
// existing outputs are never overwritten, so running the pipeline again over
// the same photos changes nothing.
package imagesort

import (
	"fmt"
	"log/slog"

	"github.com/menta2k/imagesort/internal/logging"
	"github.com/menta2k/imagesort/pkg/batch"
	"github.com/menta2k/imagesort/pkg/converter"
	"github.com/menta2k/imagesort/pkg/layout"
	"github.com/menta2k/imagesort/pkg/manifest"
)

// Version of the imagesort library
const Version = "1.0.0"

// Pipeline runs the batch conversion followed by manifest generation
type Pipeline struct {
	processor *batch.Processor
	logger    *slog.Logger
}

// Result is the outcome of one pipeline run
type Result struct {
	Layout   layout.Layout
	Report   *batch.Report
	Manifest manifest.Manifest
}

// New creates a Pipeline with default converter settings and no logging
func New() *Pipeline {
	return NewWithConfig(converter.DefaultConfig(), nil)
}

// NewWithConfig creates a Pipeline with custom converter settings
func NewWithConfig(config converter.Config, logger *slog.Logger) *Pipeline {
	logger = logging.OrNop(logger)
	conv := converter.NewWithConfig(config, logger)
	return &Pipeline{
		processor: batch.NewWithConverter(conv, logger),
		logger:    logger,
	}
}

// Init bootstraps the working tree under root.
func (p *Pipeline) Init(root string) (layout.Layout, error) {
	l, created, err := layout.Init(root)
	if err != nil {
		return l, err
	}
	if created {
		p.logger.Info("created image list", "path", l.Manifest())
	}
	return l, nil
}

// Run converts the photos under root and rewrites the manifest. The
// repository lock is held for the whole run.
func (p *Pipeline) Run(root string) (*Result, error) {
	l := layout.New(root)
	if err := l.EnsureDirs(); err != nil {
		return nil, err
	}

	unlock, err := l.Lock()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			p.logger.Warn("failed to release lock", "path", l.LockFile(), "error", err)
		}
	}()

	report, err := p.processor.Process(l.Photos(), l.Landscape(), l.Portrait())
	if err != nil {
		return nil, err
	}

	m, err := manifest.Generate(l.Landscape(), l.Portrait(), l.Manifest())
	if err != nil {
		return &Result{Layout: l, Report: report}, fmt.Errorf("failed to generate manifest: %w", err)
	}
	for _, path := range m.Unlisted {
		p.logger.Warn("left out of image list, name is not valid UTF-8", "run_id", report.RunID, "path", path)
	}
	p.logger.Info("image list written",
		"run_id", report.RunID,
		"path", l.Manifest(),
		"small_screens", len(m.SmallScreens),
		"large_screens", len(m.LargeScreens),
	)

	return &Result{Layout: l, Report: report, Manifest: m}, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
