package storage

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// IsCompressed reports whether a key names a gzip-compressed blob.
func IsCompressed(key string) bool {
	return strings.HasSuffix(key, ".gz")
}

// NewDecodingReader wraps rc with a gzip reader when the key indicates a
// compressed blob. Closing the returned reader closes rc.
func NewDecodingReader(rc io.ReadCloser, key string) (io.ReadCloser, error) {
	if !IsCompressed(key) {
		return rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, eris.Wrapf(err, "storage: gzip reader for %s", key)
	}
	return &decodingReader{zr: zr, raw: rc}, nil
}

type decodingReader struct {
	zr  *gzip.Reader
	raw io.ReadCloser
}

func (r *decodingReader) Read(p []byte) (int, error) { return r.zr.Read(p) }

func (r *decodingReader) Close() error {
	zerr := r.zr.Close()
	rerr := r.raw.Close()
	if zerr != nil {
		return zerr
	}
	return rerr
}

// NewEncodingWriter wraps w with a gzip writer when the key indicates a
// compressed blob. The caller must Close the returned writer to flush; the
// underlying writer is not closed.
func NewEncodingWriter(w io.Writer, key string) io.WriteCloser {
	if !IsCompressed(key) {
		return nopWriteCloser{w}
	}
	return gzip.NewWriter(w)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
