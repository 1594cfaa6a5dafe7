package converter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xwebp "golang.org/x/image/webp"

	"github.com/menta2k/imagesort/internal/logging"
	"github.com/menta2k/imagesort/internal/utils"
	"github.com/menta2k/imagesort/pkg/analyzer"
	"github.com/menta2k/imagesort/pkg/fingerprint"
)

// Extension is the suffix of every file the converter writes.
const Extension = ".webp"

// DefaultMaxPixels is the decoder safety ceiling on width*height.
const DefaultMaxPixels int64 = 178956970

// DefaultQuality is the lossy WebP quality used when none is configured.
const DefaultQuality = 80

// Config holds encoder settings and limits
type Config struct {
	MaxPixels int64
	Quality   int
	Lossless  bool
}

// DefaultConfig returns the settings used by New.
func DefaultConfig() Config {
	return Config{
		MaxPixels: DefaultMaxPixels,
		Quality:   DefaultQuality,
		Lossless:  false,
	}
}

// Converter turns source images into WebP files, one at a time
type Converter struct {
	config   Config
	analyzer *analyzer.ImageAnalyzer
	logger   *slog.Logger
}

// New creates a Converter with default settings and no logging
func New() *Converter {
	return NewWithConfig(DefaultConfig(), nil)
}

// NewWithConfig creates a Converter. A nil logger discards output.
func NewWithConfig(config Config, logger *slog.Logger) *Converter {
	if config.MaxPixels <= 0 {
		config.MaxPixels = DefaultMaxPixels
	}
	return &Converter{
		config:   config,
		analyzer: analyzer.New(),
		logger:   logging.OrNop(logger),
	}
}

// WithLogger returns a copy of c that logs to logger.
func (c *Converter) WithLogger(logger *slog.Logger) *Converter {
	cp := *c
	cp.logger = logging.OrNop(logger)
	return &cp
}

// Analyzer returns the probe the converter reads image headers with.
func (c *Converter) Analyzer() *analyzer.ImageAnalyzer {
	return c.analyzer
}

// Config returns the converter settings.
func (c *Converter) Config() Config {
	return c.config
}

// Convert hashes, checks and encodes the image at path into outputDir.
//
// The fingerprint goes into seen before the conversion is attempted, so a
// file that later fails still blocks byte-identical files for the rest of
// the run. Existing outputs are never overwritten.
func (c *Converter) Convert(path, outputDir string, seen *fingerprint.Set) Result {
	if seen == nil {
		seen = fingerprint.NewSet()
	}
	res := Result{Source: path}

	fp, err := fingerprint.Of(path)
	if err != nil {
		return c.fail(res, err)
	}
	res.Fingerprint = fp

	if seen.Has(fp) {
		return c.skip(res, ReasonDuplicate)
	}
	seen.Add(fp)

	info, err := c.analyzer.Probe(path)
	if err != nil {
		return c.fail(res, err)
	}
	res.Width, res.Height = info.Width, info.Height

	if info.Area > c.config.MaxPixels {
		return c.skip(res, ReasonTooLarge)
	}

	res.Output = utils.ReplaceExtension(path, outputDir, Extension)

	exists, err := utils.Exists(res.Output)
	if err != nil {
		return c.fail(res, fmt.Errorf("failed to check output path: %w", err))
	}
	if exists {
		return c.skip(res, ReasonAlreadyExists)
	}

	size, err := c.encode(path, res.Output)
	if err != nil {
		return c.fail(res, err)
	}

	res.Status = StatusConverted
	res.Bytes = size

	attrs := []any{
		"source", path,
		"output", res.Output,
		"dimensions", fmt.Sprintf("%dx%d", res.Width, res.Height),
		"size", utils.FormatFileSize(size),
	}
	if !info.TakenAt.IsZero() {
		attrs = append(attrs, "taken_at", info.TakenAt)
	}
	c.logger.Info("converted", attrs...)
	return res
}

// encode decodes src and writes it as WebP to dst. The encoded bytes land in
// a temporary file that is checked and then renamed, so dst is either
// complete or absent.
func (c *Converter) encode(src, dst string) (int64, error) {
	img, err := imaging.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	opts := &webp.Options{Lossless: c.config.Lossless, Quality: float32(c.config.Quality)}
	if err := webp.Encode(tmp, img, opts); err != nil {
		return 0, fmt.Errorf("failed to encode webp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush webp: %w", err)
	}

	bounds := img.Bounds()
	if err := verify(tmpPath, bounds.Dx(), bounds.Dy()); err != nil {
		return 0, err
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return 0, fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("failed to move output into place: %w", err)
	}
	committed = true

	stat, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to stat output: %w", err)
	}
	return stat.Size(), nil
}

// verify re-reads the WebP header of path and checks the dimensions.
func verify(path string, width, height int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen encoded output: %w", err)
	}
	defer f.Close()

	cfg, err := xwebp.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("encoded output is not valid webp: %w", err)
	}
	if cfg.Width != width || cfg.Height != height {
		return fmt.Errorf("encoded output is %dx%d, expected %dx%d", cfg.Width, cfg.Height, width, height)
	}
	return nil
}

func (c *Converter) skip(res Result, reason SkipReason) Result {
	res.Status = StatusSkipped
	res.Reason = reason
	attrs := []any{"source", res.Source, "reason", string(reason)}
	if res.Output != "" {
		attrs = append(attrs, "output", res.Output)
	}
	c.logger.Info("skipped", attrs...)
	return res
}

func (c *Converter) fail(res Result, err error) Result {
	res.Status = StatusFailed
	res.Err = err
	c.logger.Error("failed", "source", res.Source, "error", err)
	return res
}
