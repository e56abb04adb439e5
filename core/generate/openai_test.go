package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, handler func(w http.ResponseWriter, req chatRequest)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(server.Close)
	return server
}

func respondWith(w http.ResponseWriter, content string) {
	resp := chatResponse{}
	resp.Choices = append(resp.Choices, struct {
		Message chatMessage `json:"message"`
	}{Message: chatMessage{Role: "assistant", Content: content}})
	_ = json.NewEncoder(w).Encode(resp)
}

func testGenerator(t *testing.T, baseURL string) *HTTPGenerator {
	t.Helper()
	gen, err := NewHTTPGenerator(HTTPGeneratorConfig{
		BaseURL:        baseURL,
		Model:          "test-model",
		Timeout:        5 * time.Second,
		RequestsPerSec: 1000,
	})
	require.NoError(t, err)
	return gen
}

func TestNewHTTPGenerator(t *testing.T) {
	t.Run("Invalid call NewHTTPGenerator without base URL", func(t *testing.T) {
		_, err := NewHTTPGenerator(HTTPGeneratorConfig{Model: "test-model"})
		assert.Error(t, err)
	})

	t.Run("Invalid call NewHTTPGenerator without model", func(t *testing.T) {
		_, err := NewHTTPGenerator(HTTPGeneratorConfig{BaseURL: "http://localhost"})
		assert.Error(t, err)
	})
}

func TestGenerateStructured(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid JSON object is returned raw", func(t *testing.T) {
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			require.NotNil(t, req.ResponseFormat)
			assert.Equal(t, "json_object", req.ResponseFormat.Type)
			respondWith(w, `{"total_cost": 2847500}`)
		})

		gen := testGenerator(t, server.URL)
		raw, err := gen.GenerateStructured(ctx, Schema{"total_cost": "number"}, "extract")
		require.NoError(t, err)

		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &parsed))
		assert.Equal(t, float64(2847500), parsed["total_cost"])
	})

	t.Run("Code fences around the object are tolerated", func(t *testing.T) {
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			respondWith(w, "```json\n{\"contract_type\": \"FFP\"}\n```")
		})

		gen := testGenerator(t, server.URL)
		raw, err := gen.GenerateStructured(ctx, Schema{"contract_type": "string"}, "extract")
		require.NoError(t, err)
		assert.JSONEq(t, `{"contract_type": "FFP"}`, string(raw))
	})

	t.Run("Non-JSON response surfaces ErrMalformedBody", func(t *testing.T) {
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			respondWith(w, "I could not find any facts, sorry.")
		})

		gen := testGenerator(t, server.URL)
		_, err := gen.GenerateStructured(ctx, Schema{"total_cost": "number"}, "extract")
		assert.ErrorIs(t, err, ErrMalformedBody)
	})

	t.Run("Rate limited response surfaces ErrRateLimited", func(t *testing.T) {
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		gen := testGenerator(t, server.URL)
		_, err := gen.GenerateStructured(ctx, Schema{"total_cost": "number"}, "extract")
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("Schema keys are listed sorted in the system prompt", func(t *testing.T) {
		var system string
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			system = req.Messages[0].Content
			respondWith(w, `{}`)
		})

		gen := testGenerator(t, server.URL)
		_, err := gen.GenerateStructured(ctx, Schema{"b_key": "number", "a_key": "string"}, "extract")
		require.NoError(t, err)

		assert.Contains(t, system, `"a_key"`)
		assert.Contains(t, system, `"b_key"`)
		assert.Less(t, strings.Index(system, "a_key"), strings.Index(system, "b_key"), "Expected deterministic key order")
	})
}

func TestGenerateNarrative(t *testing.T) {
	ctx := context.Background()

	t.Run("Narrative text is returned verbatim", func(t *testing.T) {
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			assert.Nil(t, req.ResponseFormat, "Expected no JSON mode for narrative requests")
			respondWith(w, "The program will proceed in two phases.")
		})

		gen := testGenerator(t, server.URL)
		text, err := gen.GenerateNarrative(ctx, "write")
		require.NoError(t, err)
		assert.Equal(t, "The program will proceed in two phases.", text)
	})

	t.Run("Timeout surfaces ErrTimeout", func(t *testing.T) {
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			time.Sleep(300 * time.Millisecond)
			respondWith(w, "too late")
		})

		gen, err := NewHTTPGenerator(HTTPGeneratorConfig{
			BaseURL:        server.URL,
			Model:          "test-model",
			Timeout:        50 * time.Millisecond,
			RequestsPerSec: 1000,
		})
		require.NoError(t, err)

		_, err = gen.GenerateNarrative(ctx, "write")
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("Empty choices surface ErrMalformedBody", func(t *testing.T) {
		server := chatServer(t, func(w http.ResponseWriter, req chatRequest) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		})

		gen := testGenerator(t, server.URL)
		_, err := gen.GenerateNarrative(ctx, "write")
		assert.ErrorIs(t, err, ErrMalformedBody)
	})
}
