package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a partition failure for reporting and the audit log.
type ErrorKind string

const (
	ErrKindMissingEnrichment   ErrorKind = "missing_enrichment"
	ErrKindAmbiguousEnrichment ErrorKind = "ambiguous_enrichment"
	ErrKindOrphanEnrichment    ErrorKind = "orphan_enrichment"
	ErrKindMalformedRecord     ErrorKind = "malformed_record"
	ErrKindStorage             ErrorKind = "storage"
	ErrKindStamp               ErrorKind = "stamp"
)

// MissingEnrichmentError reports a content item with no enrichment record.
// Strict matching makes this fatal to the enclosing partition.
type MissingEnrichmentError struct {
	ContentItemID string
	IssueID       string
}

func (e *MissingEnrichmentError) Error() string {
	return fmt.Sprintf("missing enrichment for content item %s (issue %s)", e.ContentItemID, e.IssueID)
}

// AmbiguousEnrichmentError reports duplicate enrichment records for one
// content item within a partition.
type AmbiguousEnrichmentError struct {
	ContentItemID string
	Line          int
}

func (e *AmbiguousEnrichmentError) Error() string {
	return fmt.Sprintf("duplicate enrichment for content item %s (line %d)", e.ContentItemID, e.Line)
}

// OrphanEnrichmentError reports enrichment records whose content items do
// not exist in any issue of the partition. Raised only under the "fail"
// orphan policy.
type OrphanEnrichmentError struct {
	ContentItemIDs []string
}

func (e *OrphanEnrichmentError) Error() string {
	return fmt.Sprintf("%d enrichment records match no content item: %s",
		len(e.ContentItemIDs), strings.Join(e.ContentItemIDs, ", "))
}

// MalformedRecordError reports an issue or enrichment record that does not
// parse into the expected structure.
type MalformedRecordError struct {
	Source string // "issues" or "enrichment"
	Line   int
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed %s record at line %d: %s", e.Source, e.Line, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// StampError reports a stamp store failure during the check or mark step.
type StampError struct {
	Op  string // "check" or "mark"
	Err error
}

func (e *StampError) Error() string {
	return fmt.Sprintf("stamp %s failed: %s", e.Op, e.Err)
}

func (e *StampError) Unwrap() error { return e.Err }

// KindOf maps an error to its taxonomy kind. I/O failures that carry no
// typed error default to storage.
func KindOf(err error) ErrorKind {
	var missing *MissingEnrichmentError
	var ambiguous *AmbiguousEnrichmentError
	var orphan *OrphanEnrichmentError
	var malformed *MalformedRecordError
	var stamp *StampError
	switch {
	case errors.As(err, &missing):
		return ErrKindMissingEnrichment
	case errors.As(err, &ambiguous):
		return ErrKindAmbiguousEnrichment
	case errors.As(err, &orphan):
		return ErrKindOrphanEnrichment
	case errors.As(err, &malformed):
		return ErrKindMalformedRecord
	case errors.As(err, &stamp):
		return ErrKindStamp
	default:
		return ErrKindStorage
	}
}
