package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/siherrmann/docpipe/core/generate"
	"github.com/siherrmann/docpipe/model"
)

// Warning describes a non-fatal problem in one extraction stage. Extraction
// never raises to the caller; it returns a possibly partial bundle plus the
// warnings the stages produced.
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Extractor turns ranked passages into a typed fact bundle for one document
// type using three ordered stages: pattern matching, pre-structured passage
// payloads and a single model-assisted structured request for whatever is
// still unresolved.
type Extractor struct {
	gen     generate.Generator // optional, nil disables the structured stage
	timeout time.Duration
	log     *slog.Logger
}

// NewExtractor creates a new Extractor. The generator may be nil, in which
// case extraction runs on the pattern and pre-structured stages only.
func NewExtractor(gen generate.Generator, structuredTimeout time.Duration, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if structuredTimeout <= 0 {
		structuredTimeout = 60 * time.Second
	}
	return &Extractor{
		gen:     gen,
		timeout: structuredTimeout,
		log:     logger,
	}
}

// Extract runs the three extraction stages over the passages. The first stage
// to produce a value for a fact key wins; later stages only fill keys that
// are still open. A stage failure never aborts extraction, so the returned
// bundle is the union of whatever the stages managed to populate, possibly
// empty.
func (e *Extractor) Extract(ctx context.Context, docType model.DocumentType, passages []*model.Passage) (model.FactBundle, []Warning) {
	var warnings []Warning

	// Stage 1: declarative pattern matching over the concatenated text.
	bundle := applyPatterns(docType, passages)

	// Stage 2: adopt machine readable payloads carried by passages verbatim.
	// Keys supplied here skip the structured stage.
	for _, p := range passages {
		facts := p.PrestructuredFacts(docType)
		for k, v := range facts {
			if _, ok := bundle[k]; !ok {
				bundle[k] = v
			}
		}
	}

	// Stage 3: one structured request for the keys still unresolved.
	schema := SchemaFor(docType)
	open := generate.Schema{}
	for k, t := range schema {
		if _, ok := bundle[k]; !ok {
			open[k] = t
		}
	}
	if len(open) == 0 || e.gen == nil || len(passages) == 0 {
		return bundle, warnings
	}

	structured, warn := e.extractStructured(ctx, docType, open, passages)
	if warn != nil {
		warnings = append(warnings, *warn)
	}
	for k, v := range structured {
		bundle[k] = v
	}

	return bundle, warnings
}

// extractStructured issues the single model-assisted request and validates
// the response strictly against the open schema. Keys that fail to parse or
// fail type validation are dropped, not defaulted, so the population priority
// chain can fall through cleanly.
func (e *Extractor) extractStructured(ctx context.Context, docType model.DocumentType, open generate.Schema, passages []*model.Passage) (model.FactBundle, *Warning) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.gen.GenerateStructured(ctx, open, structuredPrompt(docType, passages))
	if err != nil {
		e.log.Warn("Structured extraction stage failed", slog.String("document_type", string(docType)), slog.Any("error", err))
		return nil, &Warning{Stage: "structured", Message: err.Error()}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Warning{Stage: "structured", Message: fmt.Sprintf("response is not a JSON object: %v", err)}
	}

	bundle := model.FactBundle{}
	var dropped []string
	for k, expected := range open {
		value, ok := parsed[k]
		if !ok {
			continue
		}
		if expected == TypeDate {
			if s, isString := value.(string); isString {
				if normalized, valid := NormalizeDate(s); valid {
					bundle[k] = normalized
					continue
				}
			}
			dropped = append(dropped, k)
			continue
		}
		if !validValue(value, expected) {
			dropped = append(dropped, k)
			continue
		}
		bundle[k] = value
	}

	if len(dropped) > 0 {
		return bundle, &Warning{Stage: "structured", Message: fmt.Sprintf("dropped keys failing validation: %s", strings.Join(dropped, ", "))}
	}
	return bundle, nil
}

// structuredPrompt renders the ranked passages into the user prompt for the
// structured request. Passages are truncated so a large corpus cannot blow up
// the request size.
func structuredPrompt(docType model.DocumentType, passages []*model.Passage) string {
	const maxPassageChars = 2000

	var b strings.Builder
	fmt.Fprintf(&b, "Extract facts for a %s from the following reference passages, ordered most relevant first.\n\n", docType.DisplayName())
	for i, p := range passages {
		text := p.Text
		if len(text) > maxPassageChars {
			text = text[:maxPassageChars]
		}
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, p.SourceID, text)
	}
	return b.String()
}
