package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// OpenAIProvider implements the Provider interface for OpenAI's API.
// This is the primary vendor: completions, streaming and embeddings are
// all fully supported.
type OpenAIProvider struct {
	client                openai.Client
	defaultModel          string
	defaultEmbeddingModel string
	requestTimeout        time.Duration
	streamTimeout         time.Duration
	logger                zerolog.Logger
}

const (
	// Default chat and embedding models when config names none.
	OpenAIDefaultModel          = "gpt-4o-mini"
	OpenAIDefaultEmbeddingModel = "text-embedding-ada-002"
)

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, defaultModel, defaultEmbeddingModel string, requestTimeout, streamTimeout time.Duration, logger zerolog.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	if defaultModel == "" {
		defaultModel = OpenAIDefaultModel
	}
	if defaultEmbeddingModel == "" {
		defaultEmbeddingModel = OpenAIDefaultEmbeddingModel
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	if streamTimeout <= 0 {
		streamTimeout = 300 * time.Second
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:                client,
		defaultModel:          defaultModel,
		defaultEmbeddingModel: defaultEmbeddingModel,
		requestTimeout:        requestTimeout,
		streamTimeout:         streamTimeout,
		logger:                logger,
	}, nil
}

// Name implements Provider.Name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// completionParams builds the request body shared by Complete and Stream.
func (p *OpenAIProvider) completionParams(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default: // user or anything else
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	return params
}

// Complete sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, p.completionParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai completion error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from openai")
	}
	choice := resp.Choices[0]

	completion := &Completion{
		Provider: p.Name(),
		Content:  choice.Message.Content,
		Model:    resp.Model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Metadata: map[string]any{
			"finish_reason": string(choice.FinishReason),
		},
	}

	p.logger.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", completion.Usage.PromptTokens).
		Int("completion_tokens", completion.Usage.CompletionTokens).
		Str("finish_reason", string(choice.FinishReason)).
		Msg("OpenAI completion request completed")

	return completion, nil
}

// Stream sends a streaming chat completion request to OpenAI. Deltas are
// forwarded in emission order; the terminal end chunk carries the usage
// reported by the final SSE event (IncludeUsage).
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	params := p.completionParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	// The timeout bounds the upstream call only. Chunk delivery uses the
	// caller's context, so a timed-out stream still surfaces its terminal
	// error chunk to a live consumer.
	callCtx, cancel := context.WithTimeout(ctx, p.streamTimeout)
	stream := p.client.Chat.Completions.NewStreaming(callCtx, params)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer stream.Close()

		var usage *Usage
		tokens := 0

		for stream.Next() {
			chunk := stream.Current()

			// The usage-only event arrives after the last content delta.
			if chunk.Usage.TotalTokens > 0 {
				usage = &Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}

			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			tokens++
			if !sendChunk(ctx, out, StreamChunk{
				Type:    ChunkToken,
				Content: chunk.Choices[0].Delta.Content,
			}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			p.logger.Warn().Err(err).Msg("OpenAI stream failed")
			sendChunk(ctx, out, StreamChunk{
				Type:    ChunkError,
				Content: fmt.Sprintf("openai stream error: %v", err),
			})
			return
		}

		if usage == nil {
			usage = &Usage{}
		}

		p.logger.Debug().
			Int("token_chunks", tokens).
			Int("total_tokens", usage.TotalTokens).
			Msg("OpenAI stream completed")

		sendChunk(ctx, out, StreamChunk{Type: ChunkEnd, Usage: usage})
	}()

	return out, nil
}

// Embed creates an embedding using the OpenAI API.
func (p *OpenAIProvider) Embed(ctx context.Context, text, model string) (*Embedding, error) {
	if model == "" {
		model = p.defaultEmbeddingModel
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding error: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned from openai")
	}

	promptTokens := int(resp.Usage.PromptTokens)
	return &Embedding{
		Provider: p.Name(),
		Vector:   resp.Data[0].Embedding,
		Model:    resp.Model,
		Usage: Usage{
			PromptTokens: promptTokens,
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Metadata: map[string]any{},
	}, nil
}

// HealthCheck reports whether a credential is configured. It is not an
// upstream round trip.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) bool {
	return true // constructor rejects empty keys
}

// SupportedModels returns the static OpenAI model list.
func (p *OpenAIProvider) SupportedModels() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-4",
		"gpt-3.5-turbo",
		"text-embedding-ada-002",
		"text-embedding-3-small",
	}
}

// DefaultModel returns the configured default chat model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}
