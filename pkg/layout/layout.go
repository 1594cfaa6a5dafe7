// Package layout knows where imagesort keeps its files inside a repository
// and bootstraps that tree.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/menta2k/imagesort/internal/utils"
	"github.com/menta2k/imagesort/pkg/manifest"
	"github.com/menta2k/imagesort/pkg/orientation"
)

// ErrLocked is returned by Lock when another run holds the repository lock.
var ErrLocked = errors.New("another imagesort run is in progress")

// Layout resolves the fixed working paths under a repository root.
type Layout struct {
	Root string
}

// New returns the layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// DataDir is <root>/data.
func (l Layout) DataDir() string { return filepath.Join(l.Root, "data") }

// ImageDir is <root>/data/image, the base for manifest object keys.
func (l Layout) ImageDir() string { return filepath.Join(l.DataDir(), "image") }

// Photos is the input folder.
func (l Layout) Photos() string { return filepath.Join(l.ImageDir(), "photos") }

// Landscape is the output folder for wide images.
func (l Layout) Landscape() string { return l.Bucket(orientation.Landscape) }

// Portrait is the output folder for tall and square images.
func (l Layout) Portrait() string { return l.Bucket(orientation.Portrait) }

// Bucket is the output folder for o.
func (l Layout) Bucket(o orientation.Orientation) string {
	return filepath.Join(l.ImageDir(), o.Dir())
}

// Manifest is the image list JSON path.
func (l Layout) Manifest() string { return filepath.Join(l.DataDir(), "image_lists.json") }

// LockFile is the advisory lock guarding pipeline runs.
func (l Layout) LockFile() string { return filepath.Join(l.DataDir(), ".imagesort.lock") }

// Dirs lists the working directories in creation order.
func (l Layout) Dirs() []string {
	return []string{l.Photos(), l.Portrait(), l.Landscape()}
}

// EnsureDirs creates the working directories if they are missing.
func (l Layout) EnsureDirs() error {
	for _, dir := range l.Dirs() {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Init creates the working directories and, when no manifest exists yet, an
// empty one. An existing manifest is left untouched, so Init is safe to call
// on every start.
func Init(root string) (Layout, bool, error) {
	l := New(root)
	if err := l.EnsureDirs(); err != nil {
		return l, false, err
	}

	created, err := writeManifestIfAbsent(l.Manifest())
	if err != nil {
		return l, false, err
	}
	return l, created, nil
}

func writeManifestIfAbsent(path string) (bool, error) {
	data, err := manifest.Marshal(manifest.Empty())
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create manifest: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("failed to write manifest: %w", err)
	}
	return true, nil
}

// Lock takes the repository run lock without blocking. The caller must call
// the returned unlock function.
func (l Layout) Lock() (func() error, error) {
	if err := utils.EnsureDir(l.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(l.LockFile())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock.Unlock, nil
}
