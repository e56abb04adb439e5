package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/siherrmann/docpipe/helper"
	"golang.org/x/time/rate"
)

// HTTPGeneratorConfig configures the OpenAI-compatible chat completions client.
type HTTPGeneratorConfig struct {
	BaseURL        string        // e.g. "https://api.openai.com/v1"
	APIKey         string
	Model          string
	Timeout        time.Duration // per-call deadline, applied on top of the caller's context
	RequestsPerSec float64       // proactive throttle for the rate-limited service
}

// DefaultHTTPGeneratorConfig returns a sensible default configuration
func DefaultHTTPGeneratorConfig() HTTPGeneratorConfig {
	return HTTPGeneratorConfig{
		BaseURL:        "https://api.openai.com/v1",
		Model:          "gpt-4o-mini",
		Timeout:        60 * time.Second,
		RequestsPerSec: 1.0,
	}
}

// HTTPGenerator talks to an OpenAI-compatible chat completions endpoint.
// A token bucket throttles requests proactively so the upstream limiter is
// rarely hit; a 429 surfaces as ErrRateLimited anyway.
type HTTPGenerator struct {
	config  HTTPGeneratorConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPGenerator creates a new HTTPGenerator.
func NewHTTPGenerator(config HTTPGeneratorConfig) (*HTTPGenerator, error) {
	if config.BaseURL == "" {
		return nil, helper.NewError("generator configuration validation", fmt.Errorf("base URL is empty"))
	}
	if config.Model == "" {
		return nil, helper.NewError("generator configuration validation", fmt.Errorf("model is empty"))
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = 1.0
	}

	return &HTTPGenerator{
		config:  config,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSec), 1),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateStructured asks the model for a strict JSON object matching the
// schema. The response is checked to be a syntactically valid JSON object;
// per-key type validation is left to the caller.
func (g *HTTPGenerator) GenerateStructured(ctx context.Context, schema Schema, prompt string) (json.RawMessage, error) {
	system := structuredSystemPrompt(schema)

	content, err := g.complete(ctx, system, prompt, true)
	if err != nil {
		return nil, err
	}

	raw := json.RawMessage(extractJSONObject(content))
	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	return raw, nil
}

// GenerateNarrative asks the model for free-form narrative text.
func (g *HTTPGenerator) GenerateNarrative(ctx context.Context, prompt string) (string, error) {
	return g.complete(ctx, "You are a procurement document author. Write clear, formal narrative text.", prompt, false)
}

func (g *HTTPGenerator) complete(ctx context.Context, system string, prompt string, jsonMode bool) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", helper.NewError("rate limiter wait", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: g.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}
	if jsonMode {
		reqBody.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", helper.NewError("marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", helper.NewError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", helper.NewError("execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", helper.NewError("generation request", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", helper.NewError("read response", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedBody)
	}

	return parsed.Choices[0].Message.Content, nil
}

// structuredSystemPrompt renders the schema into an instruction for strict
// JSON output. Keys are sorted so prompts are deterministic.
func structuredSystemPrompt(schema Schema) string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("You extract structured facts from procurement reference material. ")
	b.WriteString("Respond with a single JSON object and nothing else. ")
	b.WriteString("Use exactly these keys with these types, omitting any key you cannot determine:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %q: %s\n", k, schema[k])
	}
	b.WriteString("Never invent values. Numbers must be plain JSON numbers without separators or symbols. Dates must be YYYY-MM-DD strings.")
	return b.String()
}

// extractJSONObject trims the model response to the outermost JSON object, to
// tolerate code fences around otherwise valid output.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
