package model

import "github.com/google/uuid"

// UpstreamContext is the injectable context derived from the latest record of
// one upstream document type. When no usable record exists the slot is marked
// Missing with a reason instead of being silently omitted, so downstream
// consumers can render a descriptive placeholder.
type UpstreamContext struct {
	RecordID uuid.UUID  `json:"record_id,omitempty"`
	Facts    FactBundle `json:"facts,omitempty"`
	Summary  string     `json:"summary,omitempty"`
	Missing  bool       `json:"missing"`
	Reason   string     `json:"reason,omitempty"`
}

// ContextBundle maps each required upstream document type to its resolved
// context. Every in-edge of the document type appears as a key, present or
// missing.
type ContextBundle map[DocumentType]*UpstreamContext

// Fact returns the named fact from the given upstream slot, if resolved.
func (c ContextBundle) Fact(upstream DocumentType, key string) (interface{}, bool) {
	slot, ok := c[upstream]
	if !ok || slot.Missing {
		return nil, false
	}
	v, ok := slot.Facts[key]
	return v, ok
}
