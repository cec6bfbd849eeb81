package stamp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"

	"github.com/impresso/consolidator/internal/partition"
)

// LocalStore keeps stamps as marker files in a local directory. Suitable
// when all workers share one machine (or a shared mount); the directory
// lock serializes marker creation between processes.
type LocalStore struct {
	dir  string
	lock *flock.Flock
	host string
}

// NewLocalStore returns a stamp store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "stamp: create dir %s", dir)
	}
	host, _ := os.Hostname()
	return &LocalStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
		host: host,
	}, nil
}

func (s *LocalStore) markerPath(p partition.Partition, version string) string {
	name := fmt.Sprintf("%s--%s-%s-%d.done", version, p.Provider, p.Newspaper, p.Year)
	return filepath.Join(s.dir, name)
}

func (s *LocalStore) IsComplete(_ context.Context, p partition.Partition, version string) (bool, error) {
	_, err := os.Stat(s.markerPath(p, version))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, eris.Wrapf(err, "stamp: stat %s@%s", p, version)
}

func (s *LocalStore) MarkComplete(ctx context.Context, p partition.Partition, version string) error {
	locked, err := s.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return eris.Wrap(err, "stamp: acquire lock")
	}
	if !locked {
		return eris.New("stamp: lock not acquired")
	}
	defer s.lock.Unlock()

	path := s.markerPath(p, version)
	if _, err := os.Stat(path); err == nil {
		return nil // already marked by an earlier run
	}

	marker := Marker{
		Partition:   p.String(),
		Version:     version,
		CompletedAt: time.Now().UTC(),
		Host:        s.host,
	}
	payload, err := json.Marshal(marker)
	if err != nil {
		return eris.Wrap(err, "stamp: marshal marker")
	}
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return eris.Wrapf(err, "stamp: write %s@%s", p, version)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "stamp: publish %s@%s", p, version)
	}
	return nil
}
