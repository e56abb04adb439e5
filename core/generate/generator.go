package generate

import (
	"context"
	"encoding/json"
	"errors"
)

// Schema describes the strict JSON object a structured generation call must
// return: fact key to expected type ("number", "string", "date", "list").
type Schema map[string]string

// Generator is the external text-generation capability. Implementations are
// treated as unreliable, rate-limited and latent; every call carries its own
// deadline through the context.
type Generator interface {
	// GenerateStructured asks for a strict JSON object matching the schema.
	// The raw JSON is returned unparsed; validation happens at the caller.
	GenerateStructured(ctx context.Context, schema Schema, prompt string) (json.RawMessage, error)
	// GenerateNarrative asks for free-form narrative text.
	GenerateNarrative(ctx context.Context, prompt string) (string, error)
}

// Explicit failure variants, distinct from "field absent" in the extraction
// result. Callers match with errors.Is.
var (
	ErrTimeout       = errors.New("generation request timed out")
	ErrRateLimited   = errors.New("generation request was rate limited")
	ErrMalformedBody = errors.New("generation response body was malformed")
)
