package consolidate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/impresso/consolidator/internal/enrichment"
	"github.com/impresso/consolidator/internal/model"
)

const maxLineBytes = 64 * 1024 * 1024

// RunStats aggregates one partition pass.
type RunStats struct {
	Issues            int
	ItemsConsolidated int
	ImagesSkipped     int
	Orphans           []string
}

// Run streams newline-delimited issues from r, consolidates each against
// idx and writes consolidated issues to w, one per line, in input order.
// The first failing issue aborts the whole pass: callers must discard any
// partial output on error. After the last issue the orphan policy is
// applied to enrichment records that matched nothing.
func (c *Consolidator) Run(r io.Reader, w io.Writer, idx *enrichment.Index, orphans OrphanPolicy, log *zap.Logger) (*RunStats, error) {
	if log == nil {
		log = zap.L()
	}

	stats := &RunStats{}
	seen := make(map[string]struct{}, idx.Len())

	bw := bufio.NewWriter(w)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256*1024), maxLineBytes)

	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var issue model.Issue
		if err := json.Unmarshal(line, &issue); err != nil {
			return stats, &model.MalformedRecordError{
				Source: "issues",
				Line:   lineNum,
				Reason: "invalid JSON",
				Err:    err,
			}
		}

		issueStats, err := c.ConsolidateIssue(&issue, idx, seen)
		if err != nil {
			return stats, err
		}
		if len(issue.Items) == 0 {
			log.Warn("issue has no content items", zap.String("issue", issue.ID))
		}

		out, err := json.Marshal(issue)
		if err != nil {
			return stats, eris.Wrapf(err, "consolidate: marshal issue %s", issue.ID)
		}
		if _, err := bw.Write(out); err != nil {
			return stats, eris.Wrap(err, "consolidate: write output")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return stats, eris.Wrap(err, "consolidate: write output")
		}

		stats.Issues++
		stats.ItemsConsolidated += issueStats.ItemsConsolidated
		stats.ImagesSkipped += issueStats.ImagesSkipped
		log.Debug("issue consolidated",
			zap.String("issue", issue.ID),
			zap.Int("items", issueStats.ItemsConsolidated),
			zap.Int("images_skipped", issueStats.ImagesSkipped),
		)
	}
	if err := sc.Err(); err != nil {
		return stats, eris.Wrap(err, "consolidate: read issues")
	}
	if err := bw.Flush(); err != nil {
		return stats, eris.Wrap(err, "consolidate: flush output")
	}

	stats.Orphans = idx.Orphans(seen)
	if len(stats.Orphans) > 0 {
		switch orphans {
		case OrphansFail:
			return stats, &model.OrphanEnrichmentError{ContentItemIDs: stats.Orphans}
		case OrphansWarn:
			log.Warn("enrichment records matched no content item",
				zap.Int("count", len(stats.Orphans)),
				zap.Strings("content_items", truncateIDs(stats.Orphans, 20)),
			)
		}
	}

	log.Info("partition consolidated",
		zap.Int("issues", stats.Issues),
		zap.Int("items", stats.ItemsConsolidated),
		zap.Int("images_skipped", stats.ImagesSkipped),
		zap.Int("orphans", len(stats.Orphans)),
	)
	return stats, nil
}

func truncateIDs(ids []string, max int) []string {
	if len(ids) <= max {
		return ids
	}
	return ids[:max]
}
