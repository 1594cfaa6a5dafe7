package analyzer

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ImageAnalyzer reads image metadata without decoding pixel data
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	// SupportedFormats lists decoder names (as reported by image.DecodeConfig)
	// that Probe accepts.
	SupportedFormats []string
	// ReadExif enables best-effort EXIF capture time extraction.
	ReadExif bool
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
		ReadExif:         true,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	Format      string
	AspectRatio float64
	// Area is width*height, widened so large dimensions cannot overflow.
	Area int64
	// TakenAt is the EXIF capture time, zero when absent.
	TakenAt time.Time
}

// Probe opens the file at path and reads its declared dimensions from the
// header. The file is closed before Probe returns.
func (a *ImageAnalyzer) Probe(path string) (ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to read image header: %w", err)
	}

	if !a.isFormatSupported(format) {
		return ImageInfo{}, fmt.Errorf("unsupported image format: %s", format)
	}

	info := newImageInfo(cfg.Width, cfg.Height)
	info.Format = format

	if a.config.ReadExif && format == "jpeg" {
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			info.TakenAt = captureTime(file)
		}
	}

	return info, nil
}

func newImageInfo(width, height int) ImageInfo {
	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   int64(width) * int64(height),
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// captureTime returns the EXIF DateTime, or the zero time if the image has
// no usable EXIF block.
func captureTime(r io.Reader) (taken time.Time) {
	defer func() {
		// goexif can panic on malformed IFDs.
		if recover() != nil {
			taken = time.Time{}
		}
	}()

	x, err := exif.Decode(r)
	if err != nil {
		return time.Time{}
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}
	}
	return t
}
