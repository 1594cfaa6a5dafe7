// Package batch walks an input folder and routes every eligible image through
// orientation classification and WebP conversion.
package batch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/imagesort/internal/logging"
	"github.com/menta2k/imagesort/internal/utils"
	"github.com/menta2k/imagesort/pkg/converter"
	"github.com/menta2k/imagesort/pkg/fingerprint"
	"github.com/menta2k/imagesort/pkg/orientation"
)

// InputExtensions are the accepted source suffixes, matched case-sensitively.
var InputExtensions = []string{".jpg", ".jpeg", ".png"}

// Processor drives one batch of conversions
type Processor struct {
	classifier *orientation.Classifier
	converter  *converter.Converter
	logger     *slog.Logger
}

// New creates a Processor with default converter settings
func New(logger *slog.Logger) *Processor {
	return NewWithConverter(converter.New(), logger)
}

// NewWithConverter creates a Processor around conv.
func NewWithConverter(conv *converter.Converter, logger *slog.Logger) *Processor {
	return &Processor{
		classifier: orientation.NewClassifierWithAnalyzer(conv.Analyzer()),
		converter:  conv,
		logger:     logging.OrNop(logger),
	}
}

// Process converts every eligible file directly inside inputDir into
// landscapeDir or portraitDir. Per-file problems end up in the report; only
// a failure to list inputDir is returned as an error.
func (p *Processor) Process(inputDir, landscapeDir, portraitDir string) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := p.logger.With("run_id", report.RunID)
	conv := p.converter.WithLogger(logger)

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input directory: %w", err)
	}

	logger.Info("batch started", "input", inputDir, "entries", len(entries))

	// One set per run; nothing leaks between calls.
	seen := fingerprint.NewSet()

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !utils.HasExtension(name, InputExtensions...) {
			continue
		}
		path := filepath.Join(inputDir, name)

		bucket, err := p.classifier.Classify(path)
		if err != nil {
			logger.Error("failed", "source", path, "error", err)
			report.add(converter.Result{Source: path, Status: converter.StatusFailed, Err: err}, "")
			continue
		}

		outputDir := portraitDir
		if bucket == orientation.Landscape {
			outputDir = landscapeDir
		}

		report.add(conv.Convert(path, outputDir, seen), bucket)
	}

	report.FinishedAt = time.Now()
	logger.Info("batch finished",
		"converted", report.Count(converter.StatusConverted, ""),
		"skipped", report.Count(converter.StatusSkipped, ""),
		"failed", report.Count(converter.StatusFailed, ""),
		"duration", report.Duration().Round(time.Millisecond),
	)
	return report, nil
}
