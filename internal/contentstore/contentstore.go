// Package contentstore implements the content-addressed binary payload
// store for update payloads: files are sharded on disk by the
// upper hex of the last byte of their digest, then by the full hex digest,
// built on top of the resumable download/verify primitives in
// internal/content.
package contentstore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wsuscatalog/wsuscatalog/internal/content"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// Store is a content-addressed directory tree rooted at Dir.
type Store struct {
	Dir string
}

// New builds a Store rooted at dir; the directory is created on first use,
// not here.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// digestHex extracts the hex digest to shard on: the file's primary digest
// decoded from base64 and re-rendered as hex.
func digestHex(f xmlmeta.ContentFile) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(f.PrimaryDigest.Base64)
	if err != nil {
		return "", fmt.Errorf("contentstore: decode digest for %s: %w", f.FileName, err)
	}
	return hex.EncodeToString(raw), nil
}

// shardPrefix is the upper hex of the digest's last byte, the <XX> in the
// "content/<XX>/<HEX>/<HEX>" layout.
func shardPrefix(digestHexStr string) (string, error) {
	if len(digestHexStr) < 2 {
		return "", fmt.Errorf("contentstore: digest too short to shard: %q", digestHexStr)
	}
	return strings.ToUpper(digestHexStr[len(digestHexStr)-2:]), nil
}

// Shard returns the URL-facing shard segment for f, used by the downstream
// server when rewriting a file's USS URL.
func Shard(f xmlmeta.ContentFile) (string, error) {
	h, err := digestHex(f)
	if err != nil {
		return "", err
	}
	return shardPrefix(h)
}

// Path returns the on-disk path for f's payload (without the ".done"
// suffix).
func (s *Store) Path(f xmlmeta.ContentFile) (string, error) {
	h, err := digestHex(f)
	if err != nil {
		return "", err
	}
	shard, err := shardPrefix(h)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, shard, h, h), nil
}

// Contains reports whether f's payload has a completed ".done" marker.
func (s *Store) Contains(f xmlmeta.ContentFile) bool {
	path, err := s.Path(f)
	if err != nil {
		return false
	}
	_, err = os.Stat(path + ".done")
	return err == nil
}

// Download fetches f into the store, resuming a partial prior attempt, and
// verifies the digest once complete.
func (s *Store) Download(ctx context.Context, client *http.Client, f xmlmeta.ContentFile, progress content.ProgressFunc) error {
	path, err := s.Path(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("contentstore: mkdir for %s: %w", f.FileName, err)
	}

	if err := content.Download(ctx, client, "", f, path, progress); err != nil {
		return err
	}

	ok, err := content.Verify(path, f, progress)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("contentstore: digest mismatch for %s", f.FileName)
	}
	return nil
}

// Open returns a read handle and the payload's total size, for the
// downstream HTTP content handler to range-serve.
func (s *Store) Open(f xmlmeta.ContentFile) (*os.File, int64, error) {
	path, err := s.Path(f)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("contentstore: open %s: %w", path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("contentstore: stat %s: %w", path, err)
	}
	return file, stat.Size(), nil
}

// OpenByShardAndHex is the lookup path for the Content HTTP surface:
// callers parse "<shard>" and "<hexDigest>" out of the request
// URL and pass them here directly, without needing a ContentFile.
func (s *Store) OpenByShardAndHex(shard, hexDigest string) (*os.File, int64, error) {
	path := filepath.Join(s.Dir, shard, hexDigest, hexDigest)
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("contentstore: open %s: %w", path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("contentstore: stat %s: %w", path, err)
	}
	return file, stat.Size(), nil
}

// ServeHTTP streams file's payload with HTTP range support via
// http.ServeContent, matching the "GET/HEAD, range-enabled,
// application/octet-stream, Content-Disposition preserved" contract.
// fileName drives the Content-Disposition header.
func ServeHTTP(w http.ResponseWriter, r *http.Request, file *os.File, fileName string) {
	defer file.Close()
	var modTime time.Time
	if stat, err := file.Stat(); err == nil {
		modTime = stat.ModTime()
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, fileName))
	http.ServeContent(w, r, fileName, modTime, file)
}
