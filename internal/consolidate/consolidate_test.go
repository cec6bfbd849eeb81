package consolidate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/impresso/consolidator/internal/enrichment"
	"github.com/impresso/consolidator/internal/model"
)

var testTime = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func buildIndex(t *testing.T, lines ...string) *enrichment.Index {
	t.Helper()
	idx, err := enrichment.Load(strings.NewReader(strings.Join(lines, "\n")), zap.NewNop())
	require.NoError(t, err)
	return idx
}

func parseIssue(t *testing.T, raw string) *model.Issue {
	t.Helper()
	var issue model.Issue
	require.NoError(t, json.Unmarshal([]byte(raw), &issue))
	return &issue
}

func TestConsolidateIssueFull(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t,
		`{"id":"i0001","lg":"en","ocrqa":0.95,"lg_decision":"all"}`,
		`{"id":"i0002","lg":"fr","ocrqa":0.40}`,
	)
	issue := parseIssue(t, `{"id":"X-1900-01-01-a","ts":"2019-09-23 21:17:55",`+
		`"i":[{"m":{"id":"i0001","lg":"en"}},{"m":{"id":"i0002"}}]}`)

	cons := NewAt("R1", testTime)
	seen := map[string]struct{}{}
	stats, err := cons.ConsolidateIssue(issue, idx, seen)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ItemsConsolidated)
	assert.Equal(t, 0, stats.ImagesSkipped)
	assert.True(t, issue.Consolidated)
	assert.Equal(t, "2019-09-23 21:17:55", issue.ConsolidatedTSOriginal)
	assert.Equal(t, "2026-08-31 12:00:00", issue.Timestamp)
	require.Len(t, issue.Items, 2)

	first := issue.Items[0].Meta
	assert.Nil(t, first.Lang, "lg must be renamed away")
	assert.JSONEq(t, `"en"`, string(first.LangOriginal))
	assert.JSONEq(t, `"en"`, string(first.ConsolidatedLang))
	assert.Equal(t, "0.95", string(first.ConsolidatedOCRQA))
	assert.Equal(t, "R1", first.ConsolidatedRunID)

	second := issue.Items[1].Meta
	assert.Nil(t, second.LangOriginal, "absent language stays absent")
	assert.JSONEq(t, `"fr"`, string(second.ConsolidatedLang))
	assert.Equal(t, "0.40", string(second.ConsolidatedOCRQA))
	assert.Equal(t, "R1", second.ConsolidatedRunID)

	assert.Contains(t, seen, "i0001")
	assert.Contains(t, seen, "i0002")
}

func TestConsolidateIssueMissingEnrichmentFails(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, `{"id":"i0001","lg":"en","ocrqa":0.95}`)
	issue := parseIssue(t, `{"id":"X-1900-01-01-a","ts":"2019-09-23 21:17:55",`+
		`"i":[{"m":{"id":"i0001","lg":"en"}},{"m":{"id":"i0002"}}]}`)

	_, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
	var missing *model.MissingEnrichmentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "i0002", missing.ContentItemID)
	assert.Equal(t, "X-1900-01-01-a", missing.IssueID)
}

func TestConsolidateIssueImageExempt(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, `{"id":"i0001","lg":"en","ocrqa":0.95}`)
	issue := parseIssue(t, `{"id":"X-1900-01-01-a","ts":"t",`+
		`"i":[{"m":{"id":"i0001"}},{"m":{"id":"i0002","tp":"image","lg":"en"}}]}`)

	stats, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ItemsConsolidated)
	assert.Equal(t, 1, stats.ImagesSkipped)

	image := issue.Items[1].Meta
	assert.JSONEq(t, `"en"`, string(image.LangOriginal), "rename still applies to images")
	assert.Nil(t, image.ConsolidatedLang)
	assert.Empty(t, image.ConsolidatedRunID)
}

func TestConsolidateIssueLegacyLangKey(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, `{"id":"i0001","lg":"de","ocrqa":0.8}`)
	issue := parseIssue(t, `{"id":"X-1900-01-01-a","ts":"t","i":[{"m":{"id":"i0001","l":"de"}}]}`)

	_, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
	require.NoError(t, err)

	meta := issue.Items[0].Meta
	assert.Nil(t, meta.LangLegacy)
	assert.JSONEq(t, `"de"`, string(meta.LangOriginal))
}

func TestConsolidateIssueTimestampFallback(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, `{"id":"i0001","lg":"en","ocrqa":0.9}`)

	t.Run("cdt_fallback", func(t *testing.T) {
		t.Parallel()
		issue := parseIssue(t, `{"id":"A","cdt":"1900-01-01 00:00:00","i":[{"m":{"id":"i0001"}}]}`)
		_, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
		require.NoError(t, err)
		assert.Equal(t, "1900-01-01 00:00:00", issue.ConsolidatedTSOriginal)
	})

	t.Run("both_missing", func(t *testing.T) {
		t.Parallel()
		issue := parseIssue(t, `{"id":"A","i":[{"m":{"id":"i0001"}}]}`)
		_, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
		var malformed *model.MalformedRecordError
		require.ErrorAs(t, err, &malformed)
	})
}

func TestConsolidateIssueMalformed(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, `{"id":"i0001","lg":"en","ocrqa":0.9}`)

	tests := []struct {
		name string
		raw  string
	}{
		{"missing_issue_id", `{"ts":"t","i":[{"m":{"id":"i0001"}}]}`},
		{"missing_item_id", `{"id":"A","ts":"t","i":[{"m":{"lg":"en"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			issue := parseIssue(t, tt.raw)
			_, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
			var malformed *model.MalformedRecordError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestConsolidateIssueNullEnrichmentLang(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, `{"id":"i0001","lg":null,"ocrqa":0.1}`)
	issue := parseIssue(t, `{"id":"A","ts":"t","i":[{"m":{"id":"i0001"}}]}`)

	_, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
	require.NoError(t, err)

	meta := issue.Items[0].Meta
	assert.JSONEq(t, "null", string(meta.ConsolidatedLang), "computed language may be null")
	assert.Equal(t, "0.1", string(meta.ConsolidatedOCRQA))
}

func TestConsolidateIssuePreservesItemOrder(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t,
		`{"id":"i0003","lg":"en","ocrqa":0.3}`,
		`{"id":"i0001","lg":"en","ocrqa":0.1}`,
		`{"id":"i0002","lg":"en","ocrqa":0.2}`,
	)
	issue := parseIssue(t, `{"id":"A","ts":"t",`+
		`"i":[{"m":{"id":"i0003"}},{"m":{"id":"i0001"}},{"m":{"id":"i0002"}}]}`)

	_, err := NewAt("R1", testTime).ConsolidateIssue(issue, idx, nil)
	require.NoError(t, err)

	var ids []string
	for _, item := range issue.Items {
		ids = append(ids, item.Meta.ID)
	}
	assert.Equal(t, []string{"i0003", "i0001", "i0002"}, ids)
}

func TestParseOrphanPolicy(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"ignore", "warn", "fail"} {
		got, err := ParseOrphanPolicy(valid)
		require.NoError(t, err)
		assert.Equal(t, OrphanPolicy(valid), got)
	}

	got, err := ParseOrphanPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OrphansIgnore, got)

	_, err = ParseOrphanPolicy("explode")
	assert.Error(t, err)
}
