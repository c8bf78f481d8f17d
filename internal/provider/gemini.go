package provider

import (
	"context"
	"fmt"
)

// GeminiProvider is a registrable placeholder for Google's Gemini API,
// mirroring AnthropicProvider.
//
// TODO: implement against the Gemini generateContent API.
type GeminiProvider struct{}

// NewGeminiProvider creates the Gemini placeholder.
func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{}
}

// Name implements Provider.Name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Complete always fails until the provider is implemented.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	return nil, fmt.Errorf("gemini: %w", ErrNotImplemented)
}

// Stream always fails until the provider is implemented.
func (p *GeminiProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	return nil, fmt.Errorf("gemini: %w", ErrNotImplemented)
}

// Embed always fails until the provider is implemented.
func (p *GeminiProvider) Embed(ctx context.Context, text, model string) (*Embedding, error) {
	return nil, fmt.Errorf("gemini: %w", ErrNotImplemented)
}

// HealthCheck is unconditionally false for the placeholder.
func (p *GeminiProvider) HealthCheck(ctx context.Context) bool {
	return false
}

// SupportedModels returns nothing until the provider is implemented.
func (p *GeminiProvider) SupportedModels() []string {
	return []string{}
}

// DefaultModel returns nothing until the provider is implemented.
func (p *GeminiProvider) DefaultModel() string {
	return ""
}
