// Package usage converts token usage into persisted cost records.
//
// Recording is best-effort: persistence failures are logged and
// swallowed so usage tracking can never fail or delay the request that
// produced it.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xynenyx/relay/internal/provider"
)

// Rate holds per-1000-token prices for one model.
type Rate struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// DefaultRates is the static cost table used when config supplies none.
func DefaultRates() map[string]Rate {
	return map[string]Rate{
		"gpt-4o-mini":             {Input: 0.00015, Output: 0.0006},
		"gpt-4o":                  {Input: 0.005, Output: 0.015},
		"text-embedding-ada-002":  {Input: 0.0001, Output: 0.0},
		"claude-3-haiku-20240307": {Input: 0.00025, Output: 0.00125},
		"gemini-1.5-flash":        {Input: 0.000075, Output: 0.0003},
	}
}

// Record is one append-only usage ledger row.
type Record struct {
	ID               string
	UserID           string
	ConversationID   string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Metadata         map[string]any
	CreatedAt        time.Time
}

// Ledger is the external usage store. The service only ever appends.
type Ledger interface {
	Append(ctx context.Context, rec Record) error

	// Ping verifies the store is reachable, for readiness checks.
	Ping(ctx context.Context) error
}

// Totals holds aggregate statistics since process start.
type Totals struct {
	SpendUSD         float64 `json:"spend_usd"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	RequestCount     int     `json:"request_count"`
}

// Recorder computes cost from usage and appends rows to the ledger,
// keeping in-process aggregates for the metrics endpoint.
type Recorder struct {
	ledger Ledger
	rates  map[string]Rate
	logger zerolog.Logger

	mu     sync.RWMutex
	totals Totals
}

// NewRecorder creates a recorder over the given ledger and rate table.
func NewRecorder(ledger Ledger, rates map[string]Rate, logger zerolog.Logger) *Recorder {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Recorder{
		ledger: ledger,
		rates:  rates,
		logger: logger,
	}
}

// Cost computes the USD cost for usage against a model. Models missing
// from the rate table cost zero rather than failing.
func (r *Recorder) Cost(model string, u provider.Usage) float64 {
	rate := r.rates[model]
	inputCost := float64(u.PromptTokens) / 1000 * rate.Input
	outputCost := float64(u.CompletionTokens) / 1000 * rate.Output
	return inputCost + outputCost
}

// Record persists one usage row. Failures never propagate: a broken
// ledger must not change the caller-visible outcome of the request.
func (r *Recorder) Record(ctx context.Context, userID, conversationID, providerID, model string, u provider.Usage, metadata map[string]any) {
	cost := r.Cost(model, u)

	rec := Record{
		ID:               uuid.NewString(),
		UserID:           userID,
		ConversationID:   conversationID,
		Provider:         providerID,
		Model:            model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CostUSD:          cost,
		Metadata:         metadata,
		CreatedAt:        time.Now().UTC(),
	}

	if err := r.ledger.Append(ctx, rec); err != nil {
		r.logger.Warn().
			Err(err).
			Str("user_id", userID).
			Str("provider", providerID).
			Str("model", model).
			Msg("Usage record append failed")
	}

	r.mu.Lock()
	r.totals.SpendUSD += cost
	r.totals.PromptTokens += int64(u.PromptTokens)
	r.totals.CompletionTokens += int64(u.CompletionTokens)
	r.totals.RequestCount++
	r.mu.Unlock()

	r.logger.Info().
		Str("user_id", userID).
		Str("provider", providerID).
		Str("model", model).
		Int("prompt_tokens", u.PromptTokens).
		Int("completion_tokens", u.CompletionTokens).
		Float64("cost_usd", cost).
		Msg("Usage recorded")
}

// GetTotals returns aggregate statistics since process start.
func (r *Recorder) GetTotals() Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals
}
