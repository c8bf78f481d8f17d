package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RouterConfig holds per-vendor registration settings. A vendor is
// registered iff it is enabled and its credential (API key, or base URL
// for Ollama) is present.
type RouterConfig struct {
	OpenAI    OpenAIConfig
	Anthropic VendorConfig
	Gemini    VendorConfig
	Ollama    OllamaConfig

	RequestTimeout time.Duration
	StreamTimeout  time.Duration
}

// OpenAIConfig configures the primary vendor.
type OpenAIConfig struct {
	Enabled        bool
	APIKey         string
	Model          string
	EmbeddingModel string
}

// VendorConfig configures a placeholder vendor.
type VendorConfig struct {
	Enabled bool
	APIKey  string
}

// OllamaConfig configures the local vendor.
type OllamaConfig struct {
	Enabled bool
	URL     string
	Model   string
}

// ProviderInfo describes one registered provider for listing.
type ProviderInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Healthy bool     `json:"healthy"`
	Models  []string `json:"models"`
}

// Router owns the set of configured providers and resolves requests to
// one of them. The registry is built once at startup; registration order
// follows a fixed vendor precedence (openai, anthropic, gemini, ollama)
// so default resolution is reproducible across runs.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	logger    zerolog.Logger
}

// NewRouter builds the provider registry from configuration.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}

	// Primary vendor first; the rest in fixed precedence order.
	if cfg.OpenAI.Enabled && cfg.OpenAI.APIKey != "" {
		p, err := NewOpenAIProvider(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.EmbeddingModel,
			cfg.RequestTimeout,
			cfg.StreamTimeout,
			logger.With().Str("provider", "openai").Logger(),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai provider: %w", err)
		}
		r.register(p)
	}

	if cfg.Anthropic.Enabled && cfg.Anthropic.APIKey != "" {
		r.register(NewAnthropicProvider())
	}

	if cfg.Gemini.Enabled && cfg.Gemini.APIKey != "" {
		r.register(NewGeminiProvider())
	}

	if cfg.Ollama.Enabled && cfg.Ollama.URL != "" {
		p, err := NewOllamaProvider(
			cfg.Ollama.URL,
			cfg.Ollama.Model,
			cfg.RequestTimeout,
			cfg.StreamTimeout,
			logger.With().Str("provider", "ollama").Logger(),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama provider: %w", err)
		}
		r.register(p)
	}

	logger.Info().
		Strs("providers", r.order).
		Msg("Provider router initialized")

	return r, nil
}

// NewStaticRouter builds a router over pre-constructed providers, in
// the given order. Used by tests and embedded setups.
func NewStaticRouter(logger zerolog.Logger, providers ...Provider) *Router {
	r := &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
	for _, p := range providers {
		r.register(p)
	}
	return r
}

func (r *Router) register(p Provider) {
	r.providers[p.Name()] = p
	r.order = append(r.order, p.Name())
}

// Resolve returns the provider for id, or the default provider (first
// registered) when id is empty.
func (r *Router) Resolve(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" {
		if len(r.order) == 0 {
			return nil, ErrNoProviders
		}
		return r.providers[r.order[0]], nil
	}

	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q not enabled: %w", id, ErrNotFound)
	}
	return p, nil
}

// List returns provider infos in registration order. Health is probed
// live per provider, so cost is proportional to provider count.
func (r *Router) List(ctx context.Context) []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.order))
	for _, id := range r.order {
		p := r.providers[id]
		infos = append(infos, ProviderInfo{
			ID:      id,
			Name:    p.Name(),
			Enabled: true,
			Healthy: p.HealthCheck(ctx),
			Models:  p.SupportedModels(),
		})
	}
	return infos
}

// HealthOf reports the health of one provider. Unknown ids are unhealthy
// rather than an error.
func (r *Router) HealthOf(ctx context.Context, id string) bool {
	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return p.HealthCheck(ctx)
}

// Size returns the number of registered providers.
func (r *Router) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
