package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterTimeout = 60 * time.Second
)

// OpenRouter calls an OpenAI-compatible chat completion API. It is the
// last resort of the gateway chain.
type OpenRouter struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	referer    string
	title      string
}

// NewOpenRouter creates an OpenRouter client with the given API key and
// default model.
func NewOpenRouter(apiKey, model string) *OpenRouter {
	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: openRouterBaseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: openRouterTimeout,
		},
		referer: "https://github.com/pedrovictor26/ofix-assistant",
		title:   "ofix-assistant",
	}
}

// NewOpenRouterWithBaseURL creates a client pointing at a custom base URL
// (for testing).
func NewOpenRouterWithBaseURL(apiKey, model, baseURL string) *OpenRouter {
	c := NewOpenRouter(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (o *OpenRouter) Name() string { return "openrouter" }

func (o *OpenRouter) Supports(c Capability) bool {
	return c == CapabilityText || c == CapabilityJSON
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (o *OpenRouter) GenerateText(ctx context.Context, prompt string, opts Options) (Generation, error) {
	model := opts.Model
	if model == "" {
		model = o.model
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: workshopSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return Generation{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Generation{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("HTTP-Referer", o.referer)
	req.Header.Set("X-Title", o.title)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Generation{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Generation{}, &RateLimitError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Generation{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Generation{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return Generation{}, fmt.Errorf("empty choices in response")
	}

	return Generation{
		Text:         result.Choices[0].Message.Content,
		Model:        result.Model,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}

// GenerateJSON instructs the model to emit JSON and parses the output;
// prose around the object is tolerated.
func (o *OpenRouter) GenerateJSON(ctx context.Context, prompt string, schema *Schema, opts Options) (json.RawMessage, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	wrapped := fmt.Sprintf(
		"%s\n\nResponda APENAS com um objeto JSON válido seguindo este schema, sem texto adicional:\n%s",
		prompt, schemaJSON,
	)
	gen, err := o.GenerateText(ctx, wrapped, opts)
	if err != nil {
		return nil, err
	}
	return parseOrExtractJSON(gen.Text)
}

func (o *OpenRouter) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", ErrUnsupported
}

func (o *OpenRouter) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrUnsupported
}
