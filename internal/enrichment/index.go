// Package enrichment builds the per-partition lookup from content-item id
// to its externally computed language/quality record. The index is fully
// materialized before any issue is consolidated and discarded when the
// partition finishes.
package enrichment

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/impresso/consolidator/internal/model"
)

// Lines can carry full OCR system metadata; allow generous room.
const maxLineBytes = 16 * 1024 * 1024

// Index maps content-item ids to their enrichment records for exactly one
// partition.
type Index struct {
	records map[string]model.EnrichmentRecord
}

// Load reads newline-delimited enrichment records and builds the index.
// Blank lines are skipped; a record without an id or with invalid JSON is
// malformed, a repeated id is ambiguous. Both abort the load.
func Load(r io.Reader, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.L()
	}

	records := make(map[string]model.EnrichmentRecord)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec model.EnrichmentRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &model.MalformedRecordError{
				Source: "enrichment",
				Line:   lineNum,
				Reason: "invalid JSON",
				Err:    err,
			}
		}
		if rec.ID == "" {
			return nil, &model.MalformedRecordError{
				Source: "enrichment",
				Line:   lineNum,
				Reason: "missing id",
			}
		}
		if _, dup := records[rec.ID]; dup {
			return nil, &model.AmbiguousEnrichmentError{ContentItemID: rec.ID, Line: lineNum}
		}

		if code := langCode(rec.Lang); code != "" {
			if _, err := language.Parse(code); err != nil {
				log.Warn("unrecognized language code in enrichment",
					zap.String("content_item", rec.ID),
					zap.String("lg", code),
				)
			}
		}

		records[rec.ID] = rec
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "enrichment: read records")
	}

	log.Info("enrichment index built", zap.Int("records", len(records)))
	return &Index{records: records}, nil
}

// Lookup returns the record for a content item, if any.
func (x *Index) Lookup(id string) (model.EnrichmentRecord, bool) {
	rec, ok := x.records[id]
	return rec, ok
}

// Len returns the number of indexed records.
func (x *Index) Len() int { return len(x.records) }

// Orphans returns the ids of records whose content items were never seen,
// sorted for stable reporting.
func (x *Index) Orphans(seen map[string]struct{}) []string {
	var orphans []string
	for id := range x.records {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// langCode extracts a plain language string from the raw lg value. Null and
// non-string values yield "".
func langCode(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
