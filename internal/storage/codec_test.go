package storage

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewEncodingWriter(&buf, "x.jsonl.gz")
	_, err := io.WriteString(w, "line one\nline two\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Compressed output must really be gzip.
	zr, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))

	rc, err := NewDecodingReader(io.NopCloser(bytes.NewReader(buf.Bytes())), "x.jsonl.gz")
	require.NoError(t, err)
	defer rc.Close()
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestCodecPassThroughForPlainKeys(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewEncodingWriter(&buf, "x.jsonl")
	_, err := io.WriteString(w, "plain")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "plain", buf.String())

	rc, err := NewDecodingReader(io.NopCloser(strings.NewReader("plain")), "x.jsonl")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
}

func TestDecodingReaderRejectsCorruptGzip(t *testing.T) {
	t.Parallel()

	_, err := NewDecodingReader(io.NopCloser(strings.NewReader("not gzip")), "x.gz")
	assert.Error(t, err)
}

func TestIsCompressed(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCompressed("a/b/c.jsonl.gz"))
	assert.False(t, IsCompressed("a/b/c.jsonl"))
}
