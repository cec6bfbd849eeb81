package runlog

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

// Artifact is the per-partition audit record published next to the
// consolidated output. Its content is enough to diagnose a failure without
// re-running: partition identity, version, outcome and the offending
// identifiers or cause.
type Artifact struct {
	Partition           string    `json:"partition"`
	Version             string    `json:"version"`
	RunID               string    `json:"langident_run_id"`
	Status              string    `json:"status"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
	Host                string    `json:"host,omitempty"`
	Issues              int       `json:"issues"`
	ItemsConsolidated   int       `json:"items_consolidated"`
	ImagesSkipped       int       `json:"images_skipped"`
	OrphanEnrichments   []string  `json:"orphan_enrichments,omitempty"`
	ErrorKind           string    `json:"error_kind,omitempty"`
	Error               string    `json:"error,omitempty"`
	MissingContentItems []string  `json:"missing_content_items,omitempty"`
}

// NewArtifact returns an artifact skeleton for one partition attempt.
func NewArtifact(p partition.Partition, version, runID string, startedAt time.Time) Artifact {
	host, _ := os.Hostname()
	return Artifact{
		Partition: p.String(),
		Version:   version,
		RunID:     runID,
		StartedAt: startedAt.UTC(),
		Host:      host,
	}
}

// Publish uploads the artifact under the partition's log key.
func Publish(ctx context.Context, blobs storage.BlobStore, p partition.Partition, a Artifact) error {
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return eris.Wrap(err, "runlog: marshal artifact")
	}
	if err := blobs.Put(ctx, p.LogKey(a.Version), bytes.NewReader(payload)); err != nil {
		return eris.Wrapf(err, "runlog: publish artifact %s@%s", p, a.Version)
	}
	return nil
}
