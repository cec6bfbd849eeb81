// Package consolidate fuses canonical issues with their enrichment records
// under strict matching: every language-bearing content item must have
// exactly one enrichment record or the whole partition fails.
package consolidate

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/impresso/consolidator/internal/enrichment"
	"github.com/impresso/consolidator/internal/model"
)

// TimestampLayout is the canonical processing-time format.
const TimestampLayout = "2006-01-02 15:04:05"

// OrphanPolicy decides what happens to enrichment records whose content
// items never appear in any issue of the partition.
type OrphanPolicy string

const (
	OrphansIgnore OrphanPolicy = "ignore"
	OrphansWarn   OrphanPolicy = "warn"
	OrphansFail   OrphanPolicy = "fail"
)

// ParseOrphanPolicy validates a policy name.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch OrphanPolicy(s) {
	case OrphansIgnore, OrphansWarn, OrphansFail:
		return OrphanPolicy(s), nil
	case "":
		return OrphansIgnore, nil
	}
	return "", eris.Errorf("consolidate: unknown orphan policy %q (want ignore, warn or fail)", s)
}

// Consolidator rewrites issues in place against a built enrichment index.
// One consolidator serves one partition pass; all issues it touches get the
// same processing timestamp.
type Consolidator struct {
	runID     string
	timestamp string
}

// New returns a consolidator stamping outputs with the given enrichment
// run id and the current processing time.
func New(runID string) *Consolidator {
	return NewAt(runID, time.Now().UTC())
}

// NewAt is New with an explicit processing time.
func NewAt(runID string, now time.Time) *Consolidator {
	return &Consolidator{
		runID:     runID,
		timestamp: now.UTC().Format(TimestampLayout),
	}
}

// IssueStats counts what happened to one issue's content items.
type IssueStats struct {
	ItemsConsolidated int
	ImagesSkipped     int
}

// ConsolidateIssue mutates issue so that every content item carries its
// consolidated language, OCR quality and run id, then flags the issue and
// rotates its timestamp. Item order and all undocumented fields are left
// untouched. Ids of matched items are added to seen.
//
// Image items get the language rename only: the enrichment pipeline never
// produces records for them, so they are exempt from strict matching.
func (c *Consolidator) ConsolidateIssue(issue *model.Issue, idx *enrichment.Index, seen map[string]struct{}) (IssueStats, error) {
	var stats IssueStats

	if issue.ID == "" {
		return stats, &model.MalformedRecordError{Source: "issues", Reason: "issue missing id"}
	}
	originalTS := issue.Timestamp
	if originalTS == "" {
		originalTS = issue.Created
	}
	if originalTS == "" {
		return stats, &model.MalformedRecordError{
			Source: "issues",
			Reason: "issue " + issue.ID + " missing both ts and cdt",
		}
	}

	for i := range issue.Items {
		meta := &issue.Items[i].Meta
		if meta.ID == "" {
			return stats, &model.MalformedRecordError{
				Source: "issues",
				Reason: "content item missing id in issue " + issue.ID,
			}
		}

		renameLang(meta)

		if meta.Type == model.ContentItemTypeImage {
			stats.ImagesSkipped++
			continue
		}

		rec, ok := idx.Lookup(meta.ID)
		if !ok {
			return stats, &model.MissingEnrichmentError{ContentItemID: meta.ID, IssueID: issue.ID}
		}
		if seen != nil {
			seen[meta.ID] = struct{}{}
		}

		meta.ConsolidatedLang = orNull(rec.Lang)
		if rec.OCRQuality != "" {
			meta.ConsolidatedOCRQA = json.RawMessage(rec.OCRQuality)
		} else {
			meta.ConsolidatedOCRQA = json.RawMessage("null")
		}
		meta.ConsolidatedRunID = c.runID
		stats.ItemsConsolidated++
	}

	issue.Consolidated = true
	issue.ConsolidatedTSOriginal = originalTS
	issue.Timestamp = c.timestamp
	return stats, nil
}

// renameLang moves the item's original language into lg_original. An
// absent language stays absent; the legacy "l" key counts as lg.
func renameLang(meta *model.ItemMeta) {
	switch {
	case meta.Lang != nil:
		meta.LangOriginal = meta.Lang
		meta.Lang = nil
	case meta.LangLegacy != nil:
		meta.LangOriginal = meta.LangLegacy
		meta.LangLegacy = nil
	}
}

func orNull(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage("null")
	}
	return raw
}
