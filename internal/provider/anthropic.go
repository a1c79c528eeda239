package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// Anthropic calls the Anthropic Messages API. It is the high-latency remote
// dependency guarded by the gateway's circuit breaker: HTTP 429 responses
// surface as RateLimitError.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates the provider with the given API key and model; an
// empty model falls back to defaultAnthropicModel.
func NewAnthropic(apiKey, model string) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Supports(c Capability) bool {
	return c == CapabilityText || c == CapabilityJSON
}

func (a *Anthropic) GenerateText(ctx context.Context, prompt string, opts Options) (Generation, error) {
	model := opts.Model
	if model == "" {
		model = a.model
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: workshopSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Generation{}, mapAnthropicError(err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return Generation{
				Text:         block.Text,
				Model:        model,
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
			}, nil
		}
	}
	return Generation{}, fmt.Errorf("no text content in anthropic response")
}

// GenerateJSON has no native structured mode on the Messages API; it
// instructs the model and parses the text output, extracting the first
// JSON object when the model adds prose around it.
func (a *Anthropic) GenerateJSON(ctx context.Context, prompt string, schema *Schema, opts Options) (json.RawMessage, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	wrapped := fmt.Sprintf(
		"%s\n\nResponda APENAS com um objeto JSON válido seguindo este schema, sem texto adicional:\n%s",
		prompt, schemaJSON,
	)
	gen, err := a.GenerateText(ctx, wrapped, opts)
	if err != nil {
		return nil, err
	}
	return parseOrExtractJSON(gen.Text)
}

func (a *Anthropic) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", ErrUnsupported
}

func (a *Anthropic) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrUnsupported
}

// mapAnthropicError converts SDK errors to the package's typed errors.
func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Status: apiErr.StatusCode}
	}
	return fmt.Errorf("anthropic api: %w", err)
}
