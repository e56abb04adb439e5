package model

import "time"

// PipeConfig holds the tunables of the generation pipeline.
type PipeConfig struct {
	// Retrieval parameters
	PassageCount int `json:"passage_count"` // passages fetched per extraction query

	// External call timeouts, each call carries its own deadline
	RetrievalTimeout  time.Duration `json:"retrieval_timeout"`
	StructuredTimeout time.Duration `json:"structured_timeout"`
	NarrativeTimeout  time.Duration `json:"narrative_timeout"`

	// Scheduling parameters
	Workers             int           `json:"workers"` // bounded pool for independent documents
	EstimatePerDocument time.Duration `json:"estimate_per_document"`
}

// DefaultPipeConfig returns a sensible default configuration
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		PassageCount:        8,
		RetrievalTimeout:    15 * time.Second,
		StructuredTimeout:   60 * time.Second,
		NarrativeTimeout:    120 * time.Second,
		Workers:             3,
		EstimatePerDocument: 45 * time.Second,
	}
}
