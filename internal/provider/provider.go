// Package provider defines the LLM provider contract and implements
// support for multiple upstream vendors (OpenAI, Ollama, plus registrable
// placeholders for Anthropic and Gemini), together with the Router that
// selects a provider per request.
//
// The adapter pattern allows easy swapping between different AI vendors
// without the rest of the service knowing which one is behind a request.
package provider

import (
	"context"
	"errors"
)

// Message roles accepted in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sentinel errors shared across the provider layer.
var (
	// ErrNotFound is returned by the Router for unknown provider ids.
	ErrNotFound = errors.New("provider not found")

	// ErrNoProviders is returned by the Router when nothing is registered.
	ErrNoProviders = errors.New("no providers available")

	// ErrNotImplemented is returned by placeholder providers for every
	// operation until they are built out.
	ErrNotImplemented = errors.New("provider not implemented")
)

// Message is a single chat message. Order within a conversation is
// semantically significant: it affects both provider output and the
// completion cache key.
type Message struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content" binding:"required"`
}

// Usage holds token accounting for a request. TotalTokens equals
// PromptTokens+CompletionTokens whenever the vendor reports authoritative
// numbers; vendors that cannot report mid-stream leave zeros until the
// terminal chunk.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the normalized result of a synchronous completion.
// Provider carries the id of the vendor that produced it so cached
// results keep their attribution.
type Completion struct {
	Provider string         `json:"provider"`
	Content  string         `json:"content"`
	Model    string         `json:"model"`
	Usage    Usage          `json:"usage"`
	Metadata map[string]any `json:"metadata"`
}

// Embedding is the normalized result of an embedding request.
type Embedding struct {
	Provider string         `json:"provider"`
	Vector   []float64      `json:"embedding"`
	Model    string         `json:"model"`
	Usage    Usage          `json:"usage"`
	Metadata map[string]any `json:"metadata"`
}

// ChunkType tags a StreamChunk.
type ChunkType string

const (
	// ChunkToken carries incremental content.
	ChunkToken ChunkType = "token"

	// ChunkEnd terminates a successful stream and carries best-effort usage.
	ChunkEnd ChunkType = "end"

	// ChunkError terminates a failed stream. Content holds the message.
	ChunkError ChunkType = "error"
)

// StreamChunk is one element of a streaming completion. A stream is a
// finite, forward-only sequence of chunks: zero or more token chunks in
// emission order followed by exactly one end or error chunk, after which
// the channel is closed.
type StreamChunk struct {
	Type     ChunkType      `json:"type"`
	Content  string         `json:"content"`
	Usage    *Usage         `json:"usage,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Request is the normalized input for Complete and Stream. Model may be
// empty, in which case the provider uses its configured default.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider is the interface every upstream LLM vendor integration
// implements.
type Provider interface {
	// Name returns the provider id (e.g. "openai").
	Name() string

	// Complete generates a synchronous completion. Upstream transport or
	// API failures are returned as wrapped errors. Empty message lists are
	// passed through; behavior is upstream-defined.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Stream generates a streaming completion. Once the channel is
	// returned, the implementation guarantees a terminal end or error
	// chunk and then closes the channel; mid-stream transport failures
	// become an error chunk rather than a panic or a silent truncation.
	// A non-nil error means the stream could never be opened.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Embed generates an embedding vector for text.
	Embed(ctx context.Context, text, model string) (*Embedding, error)

	// HealthCheck is a cheap, non-authoritative liveness signal (is a
	// credential configured), not an upstream round trip.
	HealthCheck(ctx context.Context) bool

	// SupportedModels returns the static per-vendor capability list.
	SupportedModels() []string

	// DefaultModel returns the model used when a request names none.
	DefaultModel() string
}

// sendChunk delivers a chunk unless the consumer is gone. Returns false
// when ctx is done, which is the signal for producers to stop pulling
// from the upstream stream.
func sendChunk(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
