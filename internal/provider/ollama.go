package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// OllamaProvider implements the Provider interface for a local Ollama
// instance. Runs models locally, so there is no credential; the "is
// configured" signal is the base URL.
type OllamaProvider struct {
	client         *api.Client
	baseURL        string
	defaultModel   string
	requestTimeout time.Duration
	streamTimeout  time.Duration
	logger         zerolog.Logger
}

// OllamaDefaultModel is used when config names no model.
const OllamaDefaultModel = "llama3.1:8b"

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(baseURL, defaultModel string, requestTimeout, streamTimeout time.Duration, logger zerolog.Logger) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434" // Default Ollama URL
	}
	if defaultModel == "" {
		defaultModel = OllamaDefaultModel
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	if streamTimeout <= 0 {
		streamTimeout = 300 * time.Second
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}

	return &OllamaProvider{
		client:         api.NewClient(parsedURL, http.DefaultClient),
		baseURL:        baseURL,
		defaultModel:   defaultModel,
		requestTimeout: requestTimeout,
		streamTimeout:  streamTimeout,
		logger:         logger,
	}, nil
}

// Name implements Provider.Name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) chatRequest(req Request, stream bool) *api.ChatRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]api.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	options := map[string]any{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
}

// Complete sends a chat request to Ollama with streaming disabled.
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	chatReq := p.chatRequest(req, false)

	var content strings.Builder
	var usage Usage
	var model string

	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			model = resp.Model
			usage = Usage{
				PromptTokens:     resp.Metrics.PromptEvalCount,
				CompletionTokens: resp.Metrics.EvalCount,
				TotalTokens:      resp.Metrics.PromptEvalCount + resp.Metrics.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama completion error: %w", err)
	}

	if model == "" {
		model = chatReq.Model
	}

	p.logger.Debug().
		Str("model", model).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Msg("Ollama completion request completed")

	return &Completion{
		Provider: p.Name(),
		Content:  content.String(),
		Model:    model,
		Usage:    usage,
		Metadata: map[string]any{},
	}, nil
}

// Stream sends a streaming chat request to Ollama. The callback API is
// re-exposed as a pull channel so consumers read chunks in emission
// order and always observe a terminal chunk.
func (p *OllamaProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	// The timeout bounds the upstream call only. Chunk delivery uses the
	// caller's context, so a timed-out stream still surfaces its terminal
	// error chunk to a live consumer.
	callCtx, cancel := context.WithTimeout(ctx, p.streamTimeout)
	chatReq := p.chatRequest(req, true)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()

		var usage Usage

		err := p.client.Chat(callCtx, chatReq, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				if !sendChunk(ctx, out, StreamChunk{
					Type:    ChunkToken,
					Content: resp.Message.Content,
				}) {
					return ctx.Err()
				}
			}
			if resp.Done {
				usage = Usage{
					PromptTokens:     resp.Metrics.PromptEvalCount,
					CompletionTokens: resp.Metrics.EvalCount,
					TotalTokens:      resp.Metrics.PromptEvalCount + resp.Metrics.EvalCount,
				}
			}
			return nil
		})
		if err != nil {
			p.logger.Warn().Err(err).Msg("Ollama stream failed")
			sendChunk(ctx, out, StreamChunk{
				Type:    ChunkError,
				Content: fmt.Sprintf("ollama stream error: %v", err),
			})
			return
		}

		sendChunk(ctx, out, StreamChunk{Type: ChunkEnd, Usage: &usage})
	}()

	return out, nil
}

// Embed creates an embedding using Ollama.
func (p *OllamaProvider) Embed(ctx context.Context, text, model string) (*Embedding, error) {
	if model == "" {
		model = p.defaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding error: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned from ollama")
	}

	raw := resp.Embeddings[0]
	vector := make([]float64, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}

	// Ollama does not report embedding token usage; estimate ~4 chars
	// per token, same heuristic the chat providers use for budgets.
	estimated := len(text) / 4

	return &Embedding{
		Provider: p.Name(),
		Vector:   vector,
		Model:    model,
		Usage: Usage{
			PromptTokens: estimated,
			TotalTokens:  estimated,
		},
		Metadata: map[string]any{},
	}, nil
}

// HealthCheck reports whether a base URL is configured. It deliberately
// avoids a round trip to the Ollama daemon.
func (p *OllamaProvider) HealthCheck(ctx context.Context) bool {
	return p.baseURL != ""
}

// SupportedModels returns commonly pulled local models. Ollama can serve
// anything the operator has pulled; this list is advisory.
func (p *OllamaProvider) SupportedModels() []string {
	return []string{
		"llama3.1:8b",
		"llama3.3:70b",
		"qwen2.5-coder",
		"deepseek-coder-v2",
		"bge-m3",
		"nomic-embed-text",
	}
}

// DefaultModel returns the configured default model.
func (p *OllamaProvider) DefaultModel() string {
	return p.defaultModel
}
