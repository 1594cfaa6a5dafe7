// Package orientation sorts images into the landscape and portrait buckets
// that back the large-screen and small-screen carousels.
package orientation

import (
	"fmt"

	"github.com/menta2k/imagesort/pkg/analyzer"
)

// Orientation is the bucket an image is routed to.
type Orientation string

const (
	Landscape Orientation = "landscape"
	Portrait  Orientation = "portrait"
)

// Manifest keys for each bucket.
const (
	LargeScreens = "large_screens"
	SmallScreens = "small_screens"
)

// FromDimensions applies the classification rule: strictly wider than tall
// is landscape, everything else (squares included) is portrait.
func FromDimensions(width, height int) Orientation {
	if width > height {
		return Landscape
	}
	return Portrait
}

// Classifier decides the orientation of image files.
type Classifier struct {
	analyzer *analyzer.ImageAnalyzer
}

// NewClassifier returns a Classifier backed by the default analyzer.
func NewClassifier() *Classifier {
	return NewClassifierWithAnalyzer(analyzer.New())
}

// NewClassifierWithAnalyzer returns a Classifier that probes with a.
func NewClassifierWithAnalyzer(a *analyzer.ImageAnalyzer) *Classifier {
	return &Classifier{analyzer: a}
}

// Classify reads the header of the image at path and returns its bucket.
func (c *Classifier) Classify(path string) (Orientation, error) {
	info, err := c.analyzer.Probe(path)
	if err != nil {
		return "", fmt.Errorf("classify %s: %w", path, err)
	}
	return FromDimensions(info.Width, info.Height), nil
}

// Classify uses a default Classifier.
func Classify(path string) (Orientation, error) {
	return NewClassifier().Classify(path)
}

// Dir is the folder name, and object key prefix, for the bucket.
func (o Orientation) Dir() string {
	return string(o)
}

// ManifestKey is the manifest list this bucket feeds.
func (o Orientation) ManifestKey() string {
	if o == Landscape {
		return LargeScreens
	}
	return SmallScreens
}

func (o Orientation) String() string {
	return string(o)
}
