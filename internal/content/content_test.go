package content_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/content"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

func digestFile(body []byte, filename string) xmlmeta.ContentFile {
	sum := sha256.Sum256(body)
	return xmlmeta.ContentFile{
		FileName: filename,
		Size:     int64(len(body)),
		Digests:  []xmlmeta.Digest{{Algorithm: "SHA256", Base64: base64.StdEncoding.EncodeToString(sum[:])}},
	}
}

func TestVerify_MatchesAndMismatches(t *testing.T) {
	t.Parallel()

	body := []byte("hello world")
	f := digestFile(body, "a.bin")
	f.PrimaryDigest = f.Digests[0]

	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	ok, err := content.Verify(path, f, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	ok, err = content.Verify(path, f, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_UnsupportedDigest(t *testing.T) {
	t.Parallel()

	f := xmlmeta.ContentFile{FileName: "a.bin", Digests: []xmlmeta.Digest{{Algorithm: "MD5", Base64: "x"}}}
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := content.Verify(path, f, nil)
	assert.ErrorIs(t, err, content.ErrUnsupportedDigest)
}

func TestDownload_FullAndResumed(t *testing.T) {
	t.Parallel()

	body := []byte("the quick brown fox jumps over the lazy dog")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHdr := r.Header.Get("Range")
		if rangeHdr == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		var start int
		_, _ = fscanRange(rangeHdr, &start)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body[start:])
	}))
	defer srv.Close()

	f := digestFile(body, "fox.bin")
	dir := t.TempDir()
	dest := filepath.Join(dir, "fox.bin")

	// Simulate a partial prior download.
	require.NoError(t, os.WriteFile(dest, body[:10], 0o644))

	var events []content.Event
	err := content.Download(context.Background(), srv.Client(), srv.URL, f, dest, func(e content.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = os.Stat(dest + ".done")
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, content.DownloadFileEnd, events[len(events)-1].Stage)

	ok, err := content.Verify(dest, f, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func fscanRange(header string, start *int) (int, error) {
	// header looks like "bytes=10-"
	n := 0
	for i := len("bytes="); i < len(header); i++ {
		c := header[i]
		if c == '-' {
			break
		}
		n = n*10 + int(c-'0')
	}
	*start = n
	return 1, nil
}
