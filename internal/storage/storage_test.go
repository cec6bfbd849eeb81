package storage

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *FSStore {
	return NewFSStore(afero.NewMemMapFs(), "data")
}

func TestFSStorePutOpenRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Put(ctx, "BL/WTCH/issues/WTCH-1900-issues.jsonl", strings.NewReader("hello\n")))

	rc, err := s.Open(ctx, "BL/WTCH/issues/WTCH-1900-issues.jsonl")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestFSStorePutOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Put(ctx, "k", strings.NewReader("one")))
	require.NoError(t, s.Put(ctx, "k", strings.NewReader("two")))

	rc, err := s.Open(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFSStorePutLeavesNoPartial(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Put(ctx, "a/b", strings.NewReader("x")))
	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, keys)
}

// slowReader yields its payload in small chunks so a concurrent writer has
// every chance to interleave.
type slowReader struct {
	data []byte
	pos  int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p[:min(len(p), 512)], r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestFSStorePutConcurrentWritersPublishWholeObjects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	payloadA := strings.Repeat("a", 64*1024)
	payloadB := strings.Repeat("b", 48*1024)

	for i := 0; i < 20; i++ {
		s := newTestStore()

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, payload := range []string{payloadA, payloadB} {
			wg.Add(1)
			go func(j int, payload string) {
				defer wg.Done()
				errs[j] = s.Put(ctx, "out/x.jsonl.gz", &slowReader{data: []byte(payload)})
			}(j, payload)
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		rc, err := s.Open(ctx, "out/x.jsonl.gz")
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)

		got := string(data)
		require.True(t, got == payloadA || got == payloadB,
			"published object must be exactly one writer's payload, got len=%d", len(got))

		keys, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"out/x.jsonl.gz"}, keys, "no temp files may survive the race")
	}
}

func TestFSStoreExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore()

	ok, err := s.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "present", strings.NewReader("x")))
	ok, err = s.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFSStoreOpenMissing(t *testing.T) {
	t.Parallel()
	_, err := newTestStore().Open(context.Background(), "nope")
	assert.Error(t, err)
}

func TestFSStoreListPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore()

	for _, key := range []string{
		"BL/WTCH/issues/WTCH-1900-issues.jsonl.gz",
		"BL/WTCH/issues/WTCH-1901-issues.jsonl.gz",
		"SWA/GDL/issues/GDL-1900-issues.jsonl.gz",
	} {
		require.NoError(t, s.Put(ctx, key, strings.NewReader("x")))
	}

	keys, err := s.List(ctx, "BL/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BL/WTCH/issues/WTCH-1900-issues.jsonl.gz",
		"BL/WTCH/issues/WTCH-1901-issues.jsonl.gz",
	}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFSStoreListEmptyRoot(t *testing.T) {
	t.Parallel()
	keys, err := newTestStore().List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
