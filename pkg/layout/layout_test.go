package layout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/menta2k/imagesort/pkg/manifest"
)

func TestPaths(t *testing.T) {
	l := New("/repo")

	cases := map[string]string{
		l.Photos():    "/repo/data/image/photos",
		l.Landscape(): "/repo/data/image/landscape",
		l.Portrait():  "/repo/data/image/portrait",
		l.Manifest():  "/repo/data/image_lists.json",
		l.ImageDir():  "/repo/data/image",
	}
	for got, want := range cases {
		if got != filepath.FromSlash(want) {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestInitCreatesTree(t *testing.T) {
	root := t.TempDir()

	l, created, err := Init(root)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !created {
		t.Error("first Init should create the manifest")
	}

	for _, dir := range l.Dirs() {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s missing: %v", dir, err)
		}
	}

	m, err := manifest.Load(l.Manifest())
	if err != nil {
		t.Fatalf("manifest unreadable: %v", err)
	}
	if len(m.SmallScreens) != 0 || len(m.LargeScreens) != 0 {
		t.Errorf("expected empty manifest, got %+v", m)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	root := t.TempDir()

	l, _, err := Init(root)
	if err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(l.Manifest())
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(l.Manifest(), past, past); err != nil {
		t.Fatal(err)
	}

	_, created, err := Init(root)
	if err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if created {
		t.Error("second Init must not recreate the manifest")
	}

	after, err := os.ReadFile(l.Manifest())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Errorf("manifest content changed: %q -> %q", before, after)
	}
	info, err := os.Stat(l.Manifest())
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(past) {
		t.Errorf("manifest mtime changed: %v -> %v", past, info.ModTime())
	}
}

func TestInitKeepsExistingManifest(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := os.MkdirAll(l.DataDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	existing := `{"small_screens": ["portrait/a.webp"], "large_screens": []}`
	if err := os.WriteFile(l.Manifest(), []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Init(root); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(l.Manifest())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != existing {
		t.Errorf("existing manifest was overwritten: %s", data)
	}
}

func TestInitFailsWhenPathIsAFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "data"), []byte("in the way"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Init(root); err == nil {
		t.Error("expected error when data/ is a regular file")
	}
}

func TestLock(t *testing.T) {
	l := New(t.TempDir())

	unlock, err := l.Lock()
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	if _, err := l.Lock(); !errors.Is(err, ErrLocked) {
		t.Errorf("second Lock should report ErrLocked, got %v", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	unlock, err = l.Lock()
	if err != nil {
		t.Fatalf("Lock after unlock failed: %v", err)
	}
	_ = unlock()
}
