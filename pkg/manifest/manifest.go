// Package manifest builds and reads the JSON document that lists converted
// images per screen-size bucket.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/menta2k/imagesort/internal/utils"
	"github.com/menta2k/imagesort/pkg/converter"
	"github.com/menta2k/imagesort/pkg/orientation"
)

// ErrInvalid is returned by Load when a bucket key is missing.
var ErrInvalid = errors.New("invalid image list manifest")

// Manifest maps screen-size buckets to object keys such as
// "portrait/a.webp". Field order fixes the key order on disk.
type Manifest struct {
	SmallScreens []string `json:"small_screens"`
	LargeScreens []string `json:"large_screens"`

	// Unlisted holds paths of .webp files left out because their names are
	// not valid UTF-8 and could not round-trip through JSON.
	Unlisted []string `json:"-"`
}

// Empty returns a manifest with both buckets present and empty.
func Empty() Manifest {
	return Manifest{SmallScreens: []string{}, LargeScreens: []string{}}
}

// Bucket returns the keys for a manifest key name.
func (m Manifest) Bucket(key string) []string {
	switch key {
	case orientation.SmallScreens:
		return m.SmallScreens
	case orientation.LargeScreens:
		return m.LargeScreens
	default:
		return nil
	}
}

// Build lists both output folders and returns the manifest without writing it.
func Build(landscapeDir, portraitDir string) (Manifest, error) {
	large, badLarge, err := listKeys(landscapeDir, orientation.Landscape)
	if err != nil {
		return Manifest{}, err
	}
	small, badSmall, err := listKeys(portraitDir, orientation.Portrait)
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{
		SmallScreens: small,
		LargeScreens: large,
		Unlisted:     append(badLarge, badSmall...),
	}, nil
}

// Generate builds the manifest and overwrites manifestPath with it.
func Generate(landscapeDir, portraitDir, manifestPath string) (Manifest, error) {
	m, err := Build(landscapeDir, portraitDir)
	if err != nil {
		return Manifest{}, err
	}
	if err := Write(manifestPath, m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// listKeys returns "<bucket>/<name>" for every .webp file (any case) in dir,
// sorted by name bytewise. Files whose names are not valid UTF-8 are returned
// separately as paths.
func listKeys(dir string, bucket orientation.Orientation) ([]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s images: %w", bucket, err)
	}

	names := []string{}
	var unlisted []string
	for _, entry := range entries {
		if entry.IsDir() || !utils.HasExtensionFold(entry.Name(), converter.Extension) {
			continue
		}
		if !utf8.ValidString(entry.Name()) {
			unlisted = append(unlisted, filepath.Join(dir, entry.Name()))
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = bucket.Dir() + "/" + name
	}
	return keys, unlisted, nil
}

// Marshal encodes m without HTML or non-ASCII escaping.
func Marshal(m Manifest) ([]byte, error) {
	if m.SmallScreens == nil {
		m.SmallScreens = []string{}
	}
	if m.LargeScreens == nil {
		m.LargeScreens = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Write replaces path with m. The file is written next to path and renamed,
// so readers never see a half-written manifest.
func Write(path string, m Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// Load reads and validates a manifest file.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes manifest JSON. Both bucket keys must be present.
func Parse(data []byte) (Manifest, error) {
	var raw struct {
		SmallScreens *[]string `json:"small_screens"`
		LargeScreens *[]string `json:"large_screens"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if raw.SmallScreens == nil || raw.LargeScreens == nil {
		return Manifest{}, fmt.Errorf("%w: expected small_screens and large_screens arrays", ErrInvalid)
	}
	return Manifest{SmallScreens: *raw.SmallScreens, LargeScreens: *raw.LargeScreens}, nil
}
