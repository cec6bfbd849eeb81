// Package stamp records partition completion. A stamp for (partition,
// version) means the consolidated output for that pair was fully and
// durably published; its presence lets re-runs and concurrent workers skip
// the partition. Marking is idempotent, so uncoordinated racers converge
// on "marked" without corruption.
package stamp

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/impresso/consolidator/internal/partition"
	"github.com/impresso/consolidator/internal/storage"
)

// Store tracks completed (partition, version) pairs.
type Store interface {
	// IsComplete reports whether the partition was already consolidated and
	// published for the given output version.
	IsComplete(ctx context.Context, p partition.Partition, version string) (bool, error)
	// MarkComplete records successful publication. Must only be called after
	// all partition outputs are durably written. Calling it twice is harmless.
	MarkComplete(ctx context.Context, p partition.Partition, version string) error
}

// Marker is the stamp payload. Its content is informational; presence of
// the stamp object is the contract.
type Marker struct {
	Partition   string    `json:"partition"`
	Version     string    `json:"version"`
	CompletedAt time.Time `json:"completed_at"`
	Host        string    `json:"host,omitempty"`
}

// BlobStore keeps stamps as small marker objects next to the outputs in
// the object store, visible to every worker machine.
type BlobStore struct {
	blobs storage.BlobStore
	host  string
}

// NewBlobStore returns a stamp store writing markers through blobs.
func NewBlobStore(blobs storage.BlobStore) *BlobStore {
	host, _ := os.Hostname()
	return &BlobStore{blobs: blobs, host: host}
}

func (s *BlobStore) IsComplete(ctx context.Context, p partition.Partition, version string) (bool, error) {
	ok, err := s.blobs.Exists(ctx, p.StampKey(version))
	if err != nil {
		return false, eris.Wrapf(err, "stamp: check %s@%s", p, version)
	}
	return ok, nil
}

func (s *BlobStore) MarkComplete(ctx context.Context, p partition.Partition, version string) error {
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
	// Concurrent markers overwrite each other with equivalent content;
	// last write wins and both runs observe completion.
	if err := s.blobs.Put(ctx, p.StampKey(version), bytes.NewReader(payload)); err != nil {
		return eris.Wrapf(err, "stamp: mark %s@%s", p, version)
	}
	return nil
}
