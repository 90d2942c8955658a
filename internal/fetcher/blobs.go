package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// BlobStore is content-addressed storage for downloaded payloads, keyed by
// hex SHA-256. Identical payloads under a changed URL land on the same key,
// so re-downloads cost nothing downstream.
type BlobStore struct {
	dir string
}

// NewBlobStore opens (and creates if needed) a blob directory.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blobs: create dir %s", dir)
	}
	return &BlobStore{dir: dir}, nil
}

// Put streams r into the store and returns (hash, byte size). The payload
// is written to a temp file first and renamed into place, so a partially
// written blob is never visible under its hash.
func (b *BlobStore) Put(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(b.dir, "incoming-*")
	if err != nil {
		return "", 0, eris.Wrap(err, "blobs: create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	closeErr := tmp.Close()
	if err != nil {
		return "", 0, eris.Wrap(err, "blobs: write payload")
	}
	if closeErr != nil {
		return "", 0, eris.Wrap(closeErr, "blobs: close temp file")
	}

	hash := hex.EncodeToString(h.Sum(nil))
	dest := filepath.Join(b.dir, hash)

	if _, err := os.Stat(dest); err == nil {
		// Already stored; identical content.
		return hash, size, nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", 0, eris.Wrapf(err, "blobs: store %s", hash)
	}
	return hash, size, nil
}

// Path returns the on-disk path for a stored hash.
func (b *BlobStore) Path(hash string) string {
	return filepath.Join(b.dir, hash)
}

// Open opens a stored blob for reading.
func (b *BlobStore) Open(hash string) (*os.File, error) {
	f, err := os.Open(b.Path(hash))
	if err != nil {
		return nil, eris.Wrapf(err, "blobs: open %s", hash)
	}
	return f, nil
}
