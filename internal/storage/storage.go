// Package storage abstracts the partitioned object store holding issue,
// enrichment, output, stamp and log blobs. Keys are slash-separated paths;
// writes are atomic whole-object puts, which is what makes re-runs with
// identical (partition, version) keys safe.
package storage

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
)

// BlobStore is the object-store surface the engine needs. Implementations
// must provide read-after-write consistency per key and atomic puts.
type BlobStore interface {
	// List returns all keys under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Open returns a reader for the blob at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put atomically writes the full contents of r to key, replacing any
	// existing blob.
	Put(ctx context.Context, key string, r io.Reader) error
	// Exists reports whether a blob is present at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// FSStore implements BlobStore over an afero filesystem rooted at a
// directory: a mounted bucket or local mirror in production, a MemMapFs in
// tests.
type FSStore struct {
	fs   afero.Fs
	root string
}

// NewFSStore returns a store rooted at root on the given filesystem.
func NewFSStore(fs afero.Fs, root string) *FSStore {
	return &FSStore{fs: fs, root: root}
}

func (s *FSStore) abs(key string) string {
	return path.Join(s.root, key)
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		key := strings.TrimPrefix(strings.TrimPrefix(p, s.root), "/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "storage: list %q", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.abs(key))
	if err != nil {
		return nil, eris.Wrapf(err, "storage: open %s", key)
	}
	return f, nil
}

// Put writes to a temporary sibling and renames into place so readers never
// observe a partially written blob. The temp name is unique per call:
// uncoordinated workers racing on the same key each publish their own
// complete object and the last rename wins, never an interleave.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.abs(key)
	dir := path.Dir(dst)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "storage: mkdir for %s", key)
	}
	f, err := afero.TempFile(s.fs, dir, path.Base(dst)+".partial-*")
	if err != nil {
		return eris.Wrapf(err, "storage: create %s", key)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return eris.Wrapf(err, "storage: write %s", key)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return eris.Wrapf(err, "storage: close %s", key)
	}
	if err := s.fs.Rename(tmp, dst); err != nil {
		s.fs.Remove(tmp)
		return eris.Wrapf(err, "storage: publish %s", key)
	}
	return nil
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, s.abs(key))
	if err != nil {
		return false, eris.Wrapf(err, "storage: stat %s", key)
	}
	return ok, nil
}
