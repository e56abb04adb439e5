package model

// Metadata keys under which a reference passage may carry structured facts
// produced by an earlier processing step. PassageFactsTypeKey names the
// document type the facts were extracted for; PassageFactsKey holds the
// key/value payload itself.
const (
	PassageFactsKey     = "prestructured_facts"
	PassageFactsTypeKey = "prestructured_type"
)

// Passage is one retrieved span of reference material with its similarity
// score against the retrieval query.
type Passage struct {
	Text     string   `json:"text"`
	SourceID string   `json:"source_id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// PrestructuredFacts returns the structured facts attached to the passage
// if they were extracted for the given document type, nil otherwise.
func (p *Passage) PrestructuredFacts(docType DocumentType) map[string]interface{} {
	if p == nil || p.Metadata == nil {
		return nil
	}
	typed, ok := p.Metadata[PassageFactsTypeKey].(string)
	if !ok || typed != string(docType) {
		return nil
	}
	facts, ok := p.Metadata[PassageFactsKey].(map[string]interface{})
	if !ok {
		return nil
	}
	return facts
}
