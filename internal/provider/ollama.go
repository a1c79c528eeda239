package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Ollama talks to a local Ollama instance over HTTP. It supports plain and
// structured generation plus embeddings; transcription is not part of the
// Ollama API.
type Ollama struct {
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
}

// NewOllama creates an Ollama provider for the given base URL and models.
func NewOllama(baseURL, model, embedModel string) *Ollama {
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 0},
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Supports(c Capability) bool {
	switch c {
	case CapabilityText, CapabilityJSON:
		return true
	case CapabilityEmbed:
		return o.embedModel != ""
	default:
		return false
	}
}

// IsRunning returns true if the Ollama server responds to GET /api/tags.
func (o *Ollama) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   any             `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (o *Ollama) chat(ctx context.Context, prompt string, format any, opts Options) (ollamaChatResponse, error) {
	model := opts.Model
	if model == "" {
		model = o.model
	}

	cr := ollamaChatRequest{
		Model:    model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Format:   format,
	}
	if opts.Temperature > 0 {
		cr.Options = map[string]any{"temperature": opts.Temperature}
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return ollamaChatResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ollamaChatResponse{}, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return ollamaChatResponse{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ollamaChatResponse{}, fmt.Errorf("chat: unexpected status %d", resp.StatusCode)
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ollamaChatResponse{}, fmt.Errorf("decoding chat response: %w", err)
	}
	return result, nil
}

func (o *Ollama) GenerateText(ctx context.Context, prompt string, opts Options) (Generation, error) {
	resp, err := o.chat(ctx, prompt, nil, opts)
	if err != nil {
		return Generation{}, err
	}
	return Generation{
		Text:         resp.Message.Content,
		Model:        o.model,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

// GenerateJSON uses Ollama's native structured output: the schema is sent
// as the format field and the model is constrained to it.
func (o *Ollama) GenerateJSON(ctx context.Context, prompt string, schema *Schema, opts Options) (json.RawMessage, error) {
	resp, err := o.chat(ctx, prompt, schema, opts)
	if err != nil {
		return nil, err
	}
	return parseOrExtractJSON(resp.Message.Content)
}

func (o *Ollama) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", ErrUnsupported
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.embedModel == "" {
		return nil, ErrUnsupported
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: o.embedModel, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: unexpected status %d", resp.StatusCode)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return result.Embeddings[0], nil
}
