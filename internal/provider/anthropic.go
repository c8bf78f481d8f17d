package provider

import (
	"context"
	"fmt"
)

// AnthropicProvider is a registrable placeholder for Anthropic's Claude
// API. It keeps the Router's polymorphism uniform: the vendor can be
// enabled and resolved, but every operation fails with ErrNotImplemented
// until the integration is built.
//
// TODO: implement with the anthropic-sdk-go Messages API, following the
// same shape as OpenAIProvider.
type AnthropicProvider struct{}

// NewAnthropicProvider creates the Anthropic placeholder.
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{}
}

// Name implements Provider.Name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete always fails until the provider is implemented.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	return nil, fmt.Errorf("anthropic: %w", ErrNotImplemented)
}

// Stream always fails until the provider is implemented. The setup error
// is returned so orchestration can synthesize the terminal error chunk.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	return nil, fmt.Errorf("anthropic: %w", ErrNotImplemented)
}

// Embed always fails until the provider is implemented.
func (p *AnthropicProvider) Embed(ctx context.Context, text, model string) (*Embedding, error) {
	return nil, fmt.Errorf("anthropic: %w", ErrNotImplemented)
}

// HealthCheck is unconditionally false for the placeholder.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) bool {
	return false
}

// SupportedModels returns nothing until the provider is implemented.
func (p *AnthropicProvider) SupportedModels() []string {
	return []string{}
}

// DefaultModel returns nothing until the provider is implemented.
func (p *AnthropicProvider) DefaultModel() string {
	return ""
}
