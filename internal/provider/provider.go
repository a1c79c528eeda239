// Package provider defines the uniform capability surface over the
// assistant's response backends and its concrete implementations: a local
// rule-based responder, a local Ollama model, and the Anthropic and
// OpenRouter remote APIs.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Capability tags one operation of the provider surface. The gateway
// queries capabilities before dispatch instead of relying on "not
// implemented" errors from a live call.
type Capability string

const (
	CapabilityText       Capability = "text"
	CapabilityJSON       Capability = "json"
	CapabilityTranscribe Capability = "transcribe"
	CapabilityEmbed      Capability = "embed"
)

// workshopSystemPrompt frames every model-backed response.
const workshopSystemPrompt = "Você é o assistente virtual de uma oficina mecânica. " +
	"Responda em português, de forma curta, prática e cordial. " +
	"Nunca invente preços exatos; dê faixas e recomende uma avaliação presencial quando necessário."

// ErrUnsupported is returned immediately, without network I/O, when a
// provider is asked for a capability it does not carry.
var ErrUnsupported = errors.New("capability not supported")

// ErrNoAnswer is returned by local providers that cannot answer the given
// prompt, letting the gateway fall through the chain.
var ErrNoAnswer = errors.New("no local answer")

// RateLimitError signals an overload response from a remote provider; the
// gateway's circuit breaker trips on it.
type RateLimitError struct {
	Status int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.Status)
}

// IsRateLimit reports whether err carries a rate-limit signal.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Options tune a single generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
	Model       string
}

// Generation is the result of a text generation call.
type Generation struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Schema describes the expected JSON output structure for structured
// generation.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Provider is the uniform surface every backend exposes.
type Provider interface {
	Name() string
	Supports(c Capability) bool
	GenerateText(ctx context.Context, prompt string, opts Options) (Generation, error)
	GenerateJSON(ctx context.Context, prompt string, schema *Schema, opts Options) (json.RawMessage, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// parseOrExtractJSON validates raw as JSON, falling back to the first
// balanced object found in the text. Providers without a native structured
// mode wrap their text output through this.
func parseOrExtractJSON(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, fmt.Errorf("response is not valid JSON: %q", truncate(trimmed, 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
