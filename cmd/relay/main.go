package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/xynenyx/relay/internal/cache"
	"github.com/xynenyx/relay/internal/config"
	"github.com/xynenyx/relay/internal/prompts"
	"github.com/xynenyx/relay/internal/provider"
	"github.com/xynenyx/relay/internal/server"
	"github.com/xynenyx/relay/internal/service"
	"github.com/xynenyx/relay/internal/usage"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup logging
	logger := setupLogger()

	logger.Info().
		Str("config", *configPath).
		Msg("Starting relay")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Provider registry, fixed precedence order.
	router, err := provider.NewRouter(provider.RouterConfig{
		OpenAI: provider.OpenAIConfig{
			Enabled:        cfg.Providers.OpenAI.Enabled,
			APIKey:         cfg.Providers.OpenAI.APIKey,
			Model:          cfg.Providers.OpenAI.Model,
			EmbeddingModel: cfg.Providers.OpenAI.EmbeddingModel,
		},
		Anthropic: provider.VendorConfig{
			Enabled: cfg.Providers.Anthropic.Enabled,
			APIKey:  cfg.Providers.Anthropic.APIKey,
		},
		Gemini: provider.VendorConfig{
			Enabled: cfg.Providers.Gemini.Enabled,
			APIKey:  cfg.Providers.Gemini.APIKey,
		},
		Ollama: provider.OllamaConfig{
			Enabled: cfg.Providers.Ollama.Enabled,
			URL:     cfg.Providers.Ollama.URL,
			Model:   cfg.Providers.Ollama.Model,
		},
		RequestTimeout: cfg.RequestTimeoutDuration(),
		StreamTimeout:  cfg.StreamingTimeoutDuration(),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create provider router")
	}

	// Usage ledger
	ledger, err := usage.NewSQLiteLedger(cfg.LedgerPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open usage ledger")
	}
	defer ledger.Close()

	recorder := usage.NewRecorder(ledger, cfg.CostRates, logger)
	completionCache := cache.New(cfg.CacheTTLDuration(), logger)
	promptManager := prompts.NewManager(logger)

	svc := service.New(router, completionCache, recorder, logger)

	logger.Info().
		Int("providers", router.Size()).
		Dur("cache_ttl", cfg.CacheTTLDuration()).
		Msg("Relay initialized")

	// Start HTTP server
	srv := server.New(svc, promptManager, ledger, cfg.Port, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// setupLogger configures zerolog
func setupLogger() zerolog.Logger {
	// Pretty console output
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
