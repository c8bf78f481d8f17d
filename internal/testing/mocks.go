// Package testing provides test utilities and mocks for relay
// components, so packages can test orchestration and HTTP handling
// without real provider APIs or a real ledger database.
package testing

import (
	"context"
	"fmt"

	"github.com/xynenyx/relay/internal/provider"
	"github.com/xynenyx/relay/internal/usage"
)

// MockProvider is a mock implementation of provider.Provider.
type MockProvider struct {
	// ID is the provider name. Defaults to "mock".
	ID string

	// CompleteFunc is called when Complete() is invoked. If nil, returns a
	// default completion.
	CompleteFunc func(ctx context.Context, req provider.Request) (*provider.Completion, error)

	// StreamFunc is called when Stream() is invoked. If nil, streams
	// Chunks (or a default token + end sequence).
	StreamFunc func(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error)

	// EmbedFunc is called when Embed() is invoked. If nil, returns a
	// default embedding.
	EmbedFunc func(ctx context.Context, text, model string) (*provider.Embedding, error)

	// Chunks is the sequence emitted by the default Stream behavior.
	Chunks []provider.StreamChunk

	// Healthy controls HealthCheck().
	Healthy bool

	// Models is returned by SupportedModels().
	Models []string

	// Default is returned by DefaultModel(). Defaults to "mock-model".
	Default string

	// CallCount tracks Complete invocations.
	CallCount int

	// StreamCallCount tracks Stream invocations.
	StreamCallCount int

	// EmbedCallCount tracks Embed invocations.
	EmbedCallCount int

	// LastRequest stores the last Complete/Stream request received.
	LastRequest provider.Request
}

// Name implements provider.Provider.Name.
func (m *MockProvider) Name() string {
	if m.ID == "" {
		return "mock"
	}
	return m.ID
}

// Complete implements provider.Provider.Complete.
func (m *MockProvider) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	m.CallCount++
	m.LastRequest = req

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}

	return &provider.Completion{
		Provider: m.Name(),
		Content:  "mock response",
		Model:    m.DefaultModel(),
		Usage:    provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Metadata: map[string]any{},
	}, nil
}

// Stream implements provider.Provider.Stream.
func (m *MockProvider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	m.StreamCallCount++
	m.LastRequest = req

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}

	chunks := m.Chunks
	if chunks == nil {
		chunks = []provider.StreamChunk{
			{Type: provider.ChunkToken, Content: "mock "},
			{Type: provider.ChunkToken, Content: "stream"},
			{Type: provider.ChunkEnd, Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		}
	}

	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)
		for _, chunk := range chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Type == provider.ChunkEnd || chunk.Type == provider.ChunkError {
				return
			}
		}
	}()
	return out, nil
}

// Embed implements provider.Provider.Embed.
func (m *MockProvider) Embed(ctx context.Context, text, model string) (*provider.Embedding, error) {
	m.EmbedCallCount++

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text, model)
	}

	if model == "" {
		model = "mock-embedding"
	}
	return &provider.Embedding{
		Provider: m.Name(),
		Vector:   []float64{0.1, 0.2, 0.3},
		Model:    model,
		Usage:    provider.Usage{PromptTokens: len(text) / 4, TotalTokens: len(text) / 4},
		Metadata: map[string]any{},
	}, nil
}

// HealthCheck implements provider.Provider.HealthCheck.
func (m *MockProvider) HealthCheck(ctx context.Context) bool {
	return m.Healthy
}

// SupportedModels implements provider.Provider.SupportedModels.
func (m *MockProvider) SupportedModels() []string {
	if m.Models == nil {
		return []string{"mock-model"}
	}
	return m.Models
}

// DefaultModel implements provider.Provider.DefaultModel.
func (m *MockProvider) DefaultModel() string {
	if m.Default == "" {
		return "mock-model"
	}
	return m.Default
}

// MockLedger is an in-memory usage.Ledger for testing.
type MockLedger struct {
	// AppendFunc is called when Append() is invoked. If nil, records are
	// stored in Records.
	AppendFunc func(ctx context.Context, rec usage.Record) error

	// PingErr is returned by Ping().
	PingErr error

	// Records holds everything appended through the default path.
	Records []usage.Record
}

// Append implements usage.Ledger.Append.
func (m *MockLedger) Append(ctx context.Context, rec usage.Record) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, rec)
	}
	m.Records = append(m.Records, rec)
	return nil
}

// Ping implements usage.Ledger.Ping.
func (m *MockLedger) Ping(ctx context.Context) error {
	return m.PingErr
}

// FailingLedger is a ledger whose appends always fail, for usage
// isolation tests.
type FailingLedger struct {
	Message string
}

// Append always returns an error.
func (f *FailingLedger) Append(ctx context.Context, rec usage.Record) error {
	return fmt.Errorf("%s", f.Message)
}

// Ping always returns an error.
func (f *FailingLedger) Ping(ctx context.Context) error {
	return fmt.Errorf("%s", f.Message)
}
