package cab_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/cab"
)

func TestExecBridge_UnavailableToolReturnsSentinel(t *testing.T) {
	t.Parallel()

	b := cab.NewExecBridge("definitely-not-a-real-cab-tool-xyz")
	assert.False(t, b.Available())

	_, err := b.Decompress(context.Background(), []byte("whatever"))
	require.ErrorIs(t, err, cab.ErrCabUnavailable)
}

func TestGunzipXML_RoundTrip(t *testing.T) {
	t.Parallel()

	// gzip round-trip only; the cabextract shell-out itself needs the real
	// binary and is not exercised by these unit tests.
	original := []byte("<Update/>")
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(original)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := cab.GunzipXML(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, original, out)
}
