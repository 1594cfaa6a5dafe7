// Package fingerprint computes content digests used to detect duplicate
// images regardless of their file name.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the read buffer used while hashing, so memory stays flat
// whatever the file size.
const ChunkSize = 4096

// Fingerprint is a lowercase hex MD5 digest of a file's full contents.
type Fingerprint string

// Of hashes the file at path.
func Of(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	fp, err := FromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fp, nil
}

// FromReader hashes everything r yields, ChunkSize bytes at a time.
func FromReader(r io.Reader) (Fingerprint, error) {
	h := md5.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, onlyReader{r}, buf); err != nil {
		return "", err
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// onlyReader hides WriterTo/ReaderFrom so CopyBuffer really uses buf.
type onlyReader struct{ io.Reader }

// Set holds the fingerprints already handled during one batch run.
// It is not safe for concurrent use.
type Set struct {
	seen map[Fingerprint]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[Fingerprint]struct{})}
}

// Has reports whether fp was added before.
func (s *Set) Has(fp Fingerprint) bool {
	_, ok := s.seen[fp]
	return ok
}

// Add records fp and reports whether it was new.
func (s *Set) Add(fp Fingerprint) bool {
	if s.Has(fp) {
		return false
	}
	s.seen[fp] = struct{}{}
	return true
}

// Len returns the number of distinct fingerprints recorded.
func (s *Set) Len() int {
	return len(s.seen)
}
