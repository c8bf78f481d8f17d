package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xynenyx/relay/internal/prompts"
	"github.com/xynenyx/relay/internal/provider"
	"github.com/xynenyx/relay/internal/service"
)

const (
	headerUserID         = "X-User-ID"
	headerConversationID = "X-Conversation-ID"
)

// CompletionRequest is the request body for /complete and
// /complete/stream.
type CompletionRequest struct {
	Messages    []provider.Message `json:"messages" binding:"required,min=1,dive"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Temperature *float64           `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	MaxTokens   int                `json:"max_tokens" binding:"omitempty,gt=0"`
}

// EmbeddingRequest is the request body for /embeddings.
type EmbeddingRequest struct {
	Text     string `json:"text" binding:"required"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

const defaultTemperature = 0.7

func (r *CompletionRequest) toService() service.CompletionRequest {
	temperature := defaultTemperature
	if r.Temperature != nil {
		temperature = *r.Temperature
	}
	return service.CompletionRequest{
		Messages:    r.Messages,
		Provider:    r.Provider,
		Model:       r.Model,
		Temperature: temperature,
		MaxTokens:   r.MaxTokens,
	}
}

// writeError maps service and provider errors onto the stable error
// body. Unknown or unconfigured providers are the caller's mistake;
// everything else is a 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMissingUserID):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "missing_user_id", Detail: headerUserID + " header required"})
	case errors.Is(err, provider.ErrNotFound):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "provider_not_found", Detail: err.Error()})
	case errors.Is(err, provider.ErrNoProviders):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "no_providers", Detail: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Detail: err.Error()})
	}
}

// handleComplete handles POST /complete.
func (s *Server) handleComplete(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "missing_user_id", Detail: headerUserID + " header required"})
		return
	}

	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Detail: "invalid request: " + err.Error()})
		return
	}

	result, err := s.svc.Complete(c.Request.Context(), userID, c.GetHeader(headerConversationID), req.toService())
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("Completion failed")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleCompleteStream handles POST /complete/stream, rendering each
// stream chunk as one SSE event. No event follows the terminal chunk.
func (s *Server) handleCompleteStream(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "missing_user_id", Detail: headerUserID + " header required"})
		return
	}

	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Detail: "invalid request: " + err.Error()})
		return
	}

	chunks := s.svc.CompleteStream(c.Request.Context(), userID, c.GetHeader(headerConversationID), req.toService())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-chunks
		if !ok {
			return false
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Error().Err(err).Msg("Marshal stream chunk failed")
			return false
		}

		fmt.Fprintf(w, "data: %s\n\n", data)
		return true
	})
}

// handleEmbed handles POST /embeddings.
func (s *Server) handleEmbed(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "missing_user_id", Detail: headerUserID + " header required"})
		return
	}

	var req EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Detail: "invalid request: " + err.Error()})
		return
	}

	result, err := s.svc.Embed(c.Request.Context(), userID, c.GetHeader(headerConversationID), service.EmbeddingRequest{
		Text:     req.Text,
		Provider: req.Provider,
		Model:    req.Model,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("Embedding failed")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ProviderListResponse is the response body for GET /providers.
type ProviderListResponse struct {
	Providers []provider.ProviderInfo `json:"providers"`
}

// handleListProviders handles GET /providers.
func (s *Server) handleListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, ProviderListResponse{
		Providers: s.svc.Router().List(c.Request.Context()),
	})
}

// handleGetProvider handles GET /providers/:id.
func (s *Server) handleGetProvider(c *gin.Context) {
	id := c.Param("id")

	p, err := s.svc.Router().Resolve(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "provider_not_found", Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, provider.ProviderInfo{
		ID:      id,
		Name:    p.Name(),
		Enabled: true,
		Healthy: s.svc.Router().HealthOf(c.Request.Context(), id),
		Models:  p.SupportedModels(),
	})
}

// PromptListResponse is the response body for GET /prompts.
type PromptListResponse struct {
	Prompts []string `json:"prompts"`
}

// PromptResponse is the response body for GET /prompts/:name.
type PromptResponse struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// handleListPrompts handles GET /prompts.
func (s *Server) handleListPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, PromptListResponse{Prompts: prompts.Names()})
}

// handleGetPrompt handles GET /prompts/:name.
func (s *Server) handleGetPrompt(c *gin.Context) {
	name := c.Param("name")

	template, err := s.prompts.Get(name, c.Query("version"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "prompt_not_found", Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, PromptResponse{Name: name, Template: template})
}

// HealthResponse is the response body for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

// ReadyResponse is the response body for /ready.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReady handles GET /ready, verifying the ledger and the provider
// registry before reporting ready.
func (s *Server) handleReady(c *gin.Context) {
	checks := make(map[string]string)
	ready := true

	if err := s.ledger.Ping(c.Request.Context()); err != nil {
		checks["ledger"] = "error: " + err.Error()
		ready = false
	} else {
		checks["ledger"] = "ready"
	}

	if s.svc.Router().Size() == 0 {
		checks["providers"] = "error: no providers configured"
		ready = false
	} else {
		checks["providers"] = "ready"
	}

	status := http.StatusOK
	body := ReadyResponse{Status: "ready", Checks: checks}
	if !ready {
		status = http.StatusServiceUnavailable
		body.Status = "not ready"
	}

	c.JSON(status, body)
}

// MetricsResponse is the response body for /metrics.
type MetricsResponse struct {
	Usage     UsageMetrics `json:"usage"`
	CacheSize int          `json:"cache_size"`
}

// UsageMetrics holds aggregate usage statistics.
type UsageMetrics struct {
	SpendUSD         float64 `json:"spend_usd"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	RequestCount     int     `json:"request_count"`
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(c *gin.Context) {
	totals := s.svc.UsageTotals()

	c.JSON(http.StatusOK, MetricsResponse{
		Usage: UsageMetrics{
			SpendUSD:         totals.SpendUSD,
			PromptTokens:     totals.PromptTokens,
			CompletionTokens: totals.CompletionTokens,
			RequestCount:     totals.RequestCount,
		},
		CacheSize: s.svc.CacheSize(),
	})
}

// handleClearCache handles DELETE /cache.
func (s *Server) handleClearCache(c *gin.Context) {
	s.svc.ClearCache()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
