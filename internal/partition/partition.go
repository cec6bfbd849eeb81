// Package partition defines the unit of work — a (provider, newspaper,
// year) triple — and the deterministic key layout that makes re-runs for
// the same output version idempotent.
package partition

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"
)

// Partition identifies one provider/newspaper/year slice of the archive.
// All issues and enrichment records of a partition are processed together.
type Partition struct {
	Provider  string `json:"provider" yaml:"provider"`
	Newspaper string `json:"newspaper" yaml:"newspaper"`
	Year      int    `json:"year" yaml:"year"`
}

func (p Partition) String() string {
	return fmt.Sprintf("%s/%s/%d", p.Provider, p.Newspaper, p.Year)
}

// IssuesKey is the input key of the canonical issues blob.
func (p Partition) IssuesKey() string {
	return fmt.Sprintf("%s/%s/issues/%s-%d-issues.jsonl.gz", p.Provider, p.Newspaper, p.Newspaper, p.Year)
}

// EnrichmentKey is the input key of the langident/OCRQA enrichment blob.
func (p Partition) EnrichmentKey() string {
	return fmt.Sprintf("%s/%s/langident/%s-%d-enrichment.jsonl.gz", p.Provider, p.Newspaper, p.Newspaper, p.Year)
}

// OutputKey is the consolidated issues blob for the given output version.
// The version prefix keeps every (partition, version) pair on a fixed key.
func (p Partition) OutputKey(version string) string {
	return fmt.Sprintf("%s/%s/%s/issues/%s-%d-issues.jsonl.gz", version, p.Provider, p.Newspaper, p.Newspaper, p.Year)
}

// StampKey is the completion marker for the given output version.
func (p Partition) StampKey(version string) string {
	return fmt.Sprintf("%s/%s/%s/stamps/%s-%d.done", version, p.Provider, p.Newspaper, p.Newspaper, p.Year)
}

// LogKey is the per-partition audit artifact for the given output version.
func (p Partition) LogKey(version string) string {
	return fmt.Sprintf("%s/%s/%s/logs/%s-%d-run.json", version, p.Provider, p.Newspaper, p.Newspaper, p.Year)
}

var issuesKeyRe = regexp.MustCompile(`^([^/]+)/([^/]+)/issues/([^/]+)-(\d{4})-issues\.jsonl(\.gz)?$`)

// FromIssuesKey parses an input issues key back into its partition. Keys
// whose filename does not repeat the newspaper segment are rejected.
func FromIssuesKey(key string) (Partition, bool, error) {
	m := issuesKeyRe.FindStringSubmatch(key)
	if m == nil {
		return Partition{}, false, nil
	}
	if m[3] != m[2] {
		return Partition{}, false, nil
	}
	year, err := strconv.Atoi(m[4])
	if err != nil {
		return Partition{}, false, eris.Wrapf(err, "partition: year in %s", key)
	}
	return Partition{Provider: m[1], Newspaper: m[2], Year: year}, true, nil
}
