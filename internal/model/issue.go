package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Wire field names of the canonical issue format. Content items live under
// "i", their metadata under "m". Everything outside the keys named here is
// carried through consolidation untouched.
const (
	keyID                = "id"
	keyTimestamp         = "ts"
	keyCreated           = "cdt"
	keyItems             = "i"
	keyMeta              = "m"
	keyType              = "tp"
	keyLang              = "lg"
	keyLangLegacy        = "l"
	keyLangOriginal      = "lg_original"
	keyConsolidated      = "consolidated"
	keyConsolidatedTS    = "consolidated_ts_original"
	keyConsolidatedLang  = "consolidated_lg"
	keyConsolidatedOCRQA = "consolidated_ocrqa"
	keyConsolidatedRunID = "consolidated_langident_run_id"
)

// ContentItemTypeImage marks content items that never receive
// language/quality enrichment.
const ContentItemTypeImage = "image"

// Issue is one canonical newspaper edition. Unknown top-level fields are
// preserved in Extra and written back verbatim.
type Issue struct {
	ID                     string
	Timestamp              string // "ts", empty if absent
	Created                string // "cdt", empty if absent
	Consolidated           bool
	ConsolidatedTSOriginal string
	Items                  []ContentItem
	Extra                  map[string]json.RawMessage
}

// ContentItem is one article, ad, image or table within an issue. The
// canonical format nests its descriptive fields under "m"; sibling keys
// (page regions, legacy fields) are preserved in Extra.
type ContentItem struct {
	Meta  ItemMeta
	Extra map[string]json.RawMessage
}

// ItemMeta is the "m" block of a content item. Language values are kept as
// raw JSON so that an explicit null survives the round trip and is never
// confused with an absent field. OCRQuality is kept as json.Number so the
// value is forwarded exactly as the enrichment producer wrote it.
type ItemMeta struct {
	ID                string
	Type              string
	Lang              json.RawMessage // "lg", nil when absent
	LangLegacy        json.RawMessage // "l", nil when absent
	LangOriginal      json.RawMessage // "lg_original", nil when absent
	ConsolidatedLang  json.RawMessage
	ConsolidatedOCRQA json.RawMessage // exact number bytes, or null
	ConsolidatedRunID string
	Extra             map[string]json.RawMessage
}

func (it *Issue) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return eris.Wrap(err, "model: decode issue")
	}

	if raw, ok := takeField(fields, keyID); ok {
		if err := json.Unmarshal(raw, &it.ID); err != nil {
			return eris.Wrap(err, "model: issue id")
		}
	}
	if raw, ok := takeField(fields, keyTimestamp); ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &it.Timestamp); err != nil {
			return eris.Wrap(err, "model: issue ts")
		}
	}
	if raw, ok := takeField(fields, keyCreated); ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &it.Created); err != nil {
			return eris.Wrap(err, "model: issue cdt")
		}
	}
	if raw, ok := takeField(fields, keyConsolidated); ok {
		if err := json.Unmarshal(raw, &it.Consolidated); err != nil {
			return eris.Wrap(err, "model: issue consolidated flag")
		}
	}
	if raw, ok := takeField(fields, keyConsolidatedTS); ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &it.ConsolidatedTSOriginal); err != nil {
			return eris.Wrap(err, "model: issue consolidated_ts_original")
		}
	}
	if raw, ok := takeField(fields, keyItems); ok {
		if isNull(raw) {
			// An explicit null is an undocumented-but-present field: leave it
			// in Extra so it survives the round trip.
			fields[keyItems] = raw
		} else if err := json.Unmarshal(raw, &it.Items); err != nil {
			return eris.Wrap(err, "model: issue content items")
		}
	}
	it.Extra = fields
	return nil
}

func (it Issue) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(it.Extra)+6)
	for k, v := range it.Extra {
		fields[k] = v
	}
	if err := setField(fields, keyID, it.ID); err != nil {
		return nil, err
	}
	if it.Timestamp != "" {
		if err := setField(fields, keyTimestamp, it.Timestamp); err != nil {
			return nil, err
		}
	}
	if it.Created != "" {
		if err := setField(fields, keyCreated, it.Created); err != nil {
			return nil, err
		}
	}
	if it.Consolidated {
		if err := setField(fields, keyConsolidated, true); err != nil {
			return nil, err
		}
	}
	if it.ConsolidatedTSOriginal != "" {
		if err := setField(fields, keyConsolidatedTS, it.ConsolidatedTSOriginal); err != nil {
			return nil, err
		}
	}
	if it.Items != nil {
		if err := setField(fields, keyItems, it.Items); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

func (ci *ContentItem) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return eris.Wrap(err, "model: decode content item")
	}
	if raw, ok := takeField(fields, keyMeta); ok {
		if err := json.Unmarshal(raw, &ci.Meta); err != nil {
			return err
		}
	}
	ci.Extra = fields
	return nil
}

func (ci ContentItem) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(ci.Extra)+1)
	for k, v := range ci.Extra {
		fields[k] = v
	}
	if err := setField(fields, keyMeta, ci.Meta); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (m *ItemMeta) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return eris.Wrap(err, "model: decode item metadata")
	}

	if raw, ok := takeField(fields, keyID); ok {
		if err := json.Unmarshal(raw, &m.ID); err != nil {
			return eris.Wrap(err, "model: item id")
		}
	}
	if raw, ok := takeField(fields, keyType); ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &m.Type); err != nil {
			return eris.Wrap(err, "model: item tp")
		}
	}
	m.Lang, _ = takeField(fields, keyLang)
	m.LangLegacy, _ = takeField(fields, keyLangLegacy)
	m.LangOriginal, _ = takeField(fields, keyLangOriginal)
	m.ConsolidatedLang, _ = takeField(fields, keyConsolidatedLang)
	m.ConsolidatedOCRQA, _ = takeField(fields, keyConsolidatedOCRQA)
	if raw, ok := takeField(fields, keyConsolidatedRunID); ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &m.ConsolidatedRunID); err != nil {
			return eris.Wrap(err, "model: item run id")
		}
	}
	m.Extra = fields
	return nil
}

func (m ItemMeta) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.Extra)+8)
	for k, v := range m.Extra {
		fields[k] = v
	}
	if err := setField(fields, keyID, m.ID); err != nil {
		return nil, err
	}
	if m.Type != "" {
		if err := setField(fields, keyType, m.Type); err != nil {
			return nil, err
		}
	}
	if m.Lang != nil {
		fields[keyLang] = m.Lang
	}
	if m.LangLegacy != nil {
		fields[keyLangLegacy] = m.LangLegacy
	}
	if m.LangOriginal != nil {
		fields[keyLangOriginal] = m.LangOriginal
	}
	if m.ConsolidatedLang != nil {
		fields[keyConsolidatedLang] = m.ConsolidatedLang
	}
	if m.ConsolidatedOCRQA != nil {
		fields[keyConsolidatedOCRQA] = m.ConsolidatedOCRQA
	}
	if m.ConsolidatedRunID != "" {
		if err := setField(fields, keyConsolidatedRunID, m.ConsolidatedRunID); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

// decodeObject splits a JSON object into its raw fields, preserving numbers
// exactly as written.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return fields, nil
}

func takeField(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if ok {
		delete(fields, key)
	}
	return raw, ok
}

func setField(fields map[string]json.RawMessage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "model: marshal %s", key)
	}
	fields[key] = raw
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
