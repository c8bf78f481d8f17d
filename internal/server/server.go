// Package server provides the HTTP API for the relay service.
//
// The server package implements REST endpoints using the Gin framework:
// synchronous and streaming completions, embeddings, provider listing,
// prompt templates, health/readiness and metrics.
package server

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xynenyx/relay/internal/prompts"
	"github.com/xynenyx/relay/internal/service"
	"github.com/xynenyx/relay/internal/usage"
)

// Server is the HTTP server for the relay service.
type Server struct {
	svc     *service.Service
	prompts *prompts.Manager
	ledger  usage.Ledger
	port    int
	logger  zerolog.Logger
	engine  *gin.Engine
}

// New creates a new HTTP server.
func New(svc *service.Service, promptManager *prompts.Manager, ledger usage.Ledger, port int, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	// Add logging middleware
	engine.Use(requestID())
	engine.Use(ginLogger(logger))

	// Browser clients call the API cross-origin; allow all origins.
	engine.Use(cors.Default())

	// Add recovery middleware
	engine.Use(gin.Recovery())

	server := &Server{
		svc:     svc,
		prompts: promptManager,
		ledger:  ledger,
		port:    port,
		logger:  logger,
		engine:  engine,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Completions
	s.engine.POST("/complete", s.handleComplete)
	s.engine.POST("/complete/stream", s.handleCompleteStream)

	// Embeddings
	s.engine.POST("/embeddings", s.handleEmbed)

	// Provider registry
	s.engine.GET("/providers", s.handleListProviders)
	s.engine.GET("/providers/:id", s.handleGetProvider)

	// Prompt templates
	s.engine.GET("/prompts", s.handleListPrompts)
	s.engine.GET("/prompts/:name", s.handleGetPrompt)

	// Health and readiness
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)

	// Metrics and admin
	s.engine.GET("/metrics", s.handleMetrics)
	s.engine.DELETE("/cache", s.handleClearCache)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info().
		Str("addr", addr).
		Msg("Starting HTTP server")

	return s.engine.Run(addr)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// requestID tags each request with a unique id for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// ginLogger creates a Gin middleware that logs using zerolog.
func ginLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after processing
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Msg("HTTP request")
	}
}
