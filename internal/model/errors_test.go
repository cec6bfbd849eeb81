package model

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"missing", &MissingEnrichmentError{ContentItemID: "i0002"}, ErrKindMissingEnrichment},
		{"ambiguous", &AmbiguousEnrichmentError{ContentItemID: "i0001", Line: 7}, ErrKindAmbiguousEnrichment},
		{"orphan", &OrphanEnrichmentError{ContentItemIDs: []string{"i9"}}, ErrKindOrphanEnrichment},
		{"malformed", &MalformedRecordError{Source: "issues", Line: 3, Reason: "invalid JSON"}, ErrKindMalformedRecord},
		{"wrapped_missing", eris.Wrap(&MissingEnrichmentError{ContentItemID: "i0002"}, "partition"), ErrKindMissingEnrichment},
		{"stamp", &StampError{Op: "mark", Err: eris.New("put marker")}, ErrKindStamp},
		{"io", eris.New("open failed"), ErrKindStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMissingEnrichmentErrorNamesItem(t *testing.T) {
	t.Parallel()

	err := &MissingEnrichmentError{ContentItemID: "X-1900-01-01-a-i0002", IssueID: "X-1900-01-01-a"}
	assert.Contains(t, err.Error(), "X-1900-01-01-a-i0002")
}
