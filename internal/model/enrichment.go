package model

import "encoding/json"

// EnrichmentRecord is one externally computed language/quality annotation
// for a single content item. The decision/system fields are loaded for
// diagnostics but never propagated to consolidated output.
type EnrichmentRecord struct {
	ID                string          `json:"id"`
	Lang              json.RawMessage `json:"lg,omitempty"`
	OCRQuality        json.Number     `json:"ocrqa,omitempty"`
	LangDecision      string          `json:"lg_decision,omitempty"`
	Systems           json.RawMessage `json:"systems,omitempty"`
	AlphabeticalRatio json.Number     `json:"alphabetical_ratio,omitempty"`
}
