package runlog

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impresso/consolidator/internal/storage"
)

func TestPublishArtifact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	blobs := storage.NewFSStore(afero.NewMemMapFs(), "out")

	a := NewArtifact(testPart, "v1", "langident-v2-0-2", time.Now())
	a.Status = StatusFailed
	a.CompletedAt = time.Now().UTC()
	a.Error = "missing enrichment for content item i0002 (issue X-1900-01-01-a)"
	a.ErrorKind = "missing_enrichment"
	a.MissingContentItems = []string{"i0002"}

	require.NoError(t, Publish(ctx, blobs, testPart, a))

	rc, err := blobs.Open(ctx, testPart.LogKey("v1"))
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	var got Artifact
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "BL/WTCH/1900", got.Partition)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, "langident-v2-0-2", got.RunID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, []string{"i0002"}, got.MissingContentItems)
	assert.Equal(t, "missing_enrichment", got.ErrorKind)
}

func TestPublishSuccessArtifact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	blobs := storage.NewFSStore(afero.NewMemMapFs(), "out")

	a := NewArtifact(testPart, "v1", "R1", time.Now())
	a.Status = StatusComplete
	a.CompletedAt = time.Now().UTC()
	a.Issues = 42
	a.ItemsConsolidated = 980

	require.NoError(t, Publish(ctx, blobs, testPart, a))

	ok, err := blobs.Exists(ctx, testPart.LogKey("v1"))
	require.NoError(t, err)
	assert.True(t, ok)
}
