// Package service implements per-request orchestration: cache lookup,
// provider dispatch, cache population, usage recording and response
// shaping, for both synchronous and streaming completions.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xynenyx/relay/internal/cache"
	"github.com/xynenyx/relay/internal/provider"
	"github.com/xynenyx/relay/internal/usage"
)

// ErrMissingUserID is returned when a request carries no caller
// identity. Usage tracking requires one.
var ErrMissingUserID = errors.New("user id is required")

// CompletionRequest is the normalized completion input from the HTTP
// boundary.
type CompletionRequest struct {
	Messages    []provider.Message
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// EmbeddingRequest is the normalized embedding input.
type EmbeddingRequest struct {
	Text     string
	Provider string
	Model    string
}

// Service wires the router, cache and recorder into the request path.
// Constructed once at startup and shared by all in-flight requests.
type Service struct {
	router   *provider.Router
	cache    *cache.Cache
	recorder *usage.Recorder
	logger   zerolog.Logger
}

// New creates the orchestration service.
func New(router *provider.Router, completionCache *cache.Cache, recorder *usage.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		router:   router,
		cache:    completionCache,
		recorder: recorder,
		logger:   logger,
	}
}

// Complete handles the synchronous completion path. Cache hits skip the
// provider call and usage recording (usage was recorded when the entry
// was inserted); misses dispatch to the resolved provider, populate the
// cache when eligible, and record usage.
func (s *Service) Complete(ctx context.Context, userID, conversationID string, req CompletionRequest) (*provider.Completion, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	if cached, ok := s.cache.Get(req.Messages, req.Temperature); ok {
		s.logger.Debug().
			Str("user_id", userID).
			Str("provider", cached.Provider).
			Msg("Completion served from cache")
		return cached, nil
	}

	p, err := s.router.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := p.Complete(ctx, provider.Request{
		Messages:    req.Messages,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
	}

	s.cache.Set(req.Messages, *result, req.Temperature)
	s.recorder.Record(ctx, userID, conversationID, p.Name(), result.Model, result.Usage, result.Metadata)

	return result, nil
}

// CompleteStream handles the streaming path. The returned channel always
// yields a well-formed sequence: zero or more token chunks followed by
// exactly one terminal chunk, then close. Failures before the first
// chunk become a single synthetic error chunk. Usage is recorded only on
// a clean terminal end; the stream is never cached.
func (s *Service) CompleteStream(ctx context.Context, userID, conversationID string, req CompletionRequest) <-chan provider.StreamChunk {
	out := make(chan provider.StreamChunk)

	go func() {
		defer close(out)

		fail := func(err error) {
			select {
			case out <- provider.StreamChunk{Type: provider.ChunkError, Content: err.Error()}:
			case <-ctx.Done():
			}
		}

		if userID == "" {
			fail(ErrMissingUserID)
			return
		}

		p, err := s.router.Resolve(req.Provider)
		if err != nil {
			fail(err)
			return
		}

		chunks, err := p.Stream(ctx, provider.Request{
			Messages:    req.Messages,
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			fail(fmt.Errorf("provider %s: %w", p.Name(), err))
			return
		}

		model := req.Model
		if model == "" {
			model = p.DefaultModel()
		}

		for chunk := range chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Caller gone; stop pulling so the provider releases
				// its upstream stream. No partial usage is recorded.
				return
			}

			switch chunk.Type {
			case provider.ChunkEnd:
				// Providers that cannot report usage carry zeros; the
				// ledger row and request count still happen.
				var u provider.Usage
				if chunk.Usage != nil {
					u = *chunk.Usage
				}
				s.recorder.Record(ctx, userID, conversationID, p.Name(), model, u, nil)
				return
			case provider.ChunkError:
				return
			}
		}
	}()

	return out
}

// Embed handles the embedding path. Embeddings are never cached.
func (s *Service) Embed(ctx context.Context, userID, conversationID string, req EmbeddingRequest) (*provider.Embedding, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	p, err := s.router.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := p.Embed(ctx, req.Text, req.Model)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
	}

	s.recorder.Record(ctx, userID, conversationID, p.Name(), result.Model, result.Usage, result.Metadata)

	return result, nil
}

// Router exposes the provider registry for the HTTP listing endpoints.
func (s *Service) Router() *provider.Router {
	return s.router
}

// CacheSize reports the number of cached completions.
func (s *Service) CacheSize() int {
	return s.cache.Size()
}

// ClearCache drops all cached completions.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// UsageTotals reports aggregate usage since process start.
func (s *Service) UsageTotals() usage.Totals {
	return s.recorder.GetTotals()
}
