// Package app assembles the generation pipeline from configuration. Both
// the API server and the CLI build their Generator here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/config"
	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/llm"
	"github.com/testforge/casegen/internal/observability"
	"github.com/testforge/casegen/internal/ocr"
	rediscache "github.com/testforge/casegen/internal/repository/redis"
	"github.com/testforge/casegen/internal/services/generation"
	"github.com/testforge/casegen/internal/storage"
)

// App is a wired pipeline plus the handles a binary needs to manage
type App struct {
	Generator *generation.Generator
	Backends  *llm.Registry
	Metrics   *observability.Metrics

	// Cache is nil when Redis is disabled or unreachable
	Cache *rediscache.Cache

	logger *zap.Logger
}

// Options controls optional wiring
type Options struct {
	// UseRedis enables the shared cache tier when a Redis host is configured
	UseRedis bool
	// Engine overrides the configured OCR engine
	Engine ocr.Engine
	// Backends overrides the backends built from API keys
	Backends []llm.Backend
	// DispatcherOptions are passed to the dispatcher, after the metrics option
	DispatcherOptions []llm.DispatcherOption
}

// New builds the pipeline described by cfg
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Metrics: metrics, logger: logger}

	backends := opts.Backends
	if backends == nil {
		var err error
		backends, err = buildBackends(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no model backend configured: set ANTHROPIC_API_KEY or GEMINI_API_KEY")
	}
	a.Backends = llm.NewRegistry(backends...)

	defaultModel, err := domain.ParseBackend(cfg.Pipeline.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("default model: %w", err)
	}
	if _, err := a.Backends.Get(defaultModel); err != nil {
		defaultModel = backends[0].Name()
		logger.Warn("default model has no API key, falling back",
			zap.String("configured", cfg.Pipeline.DefaultModel),
			zap.String("using", defaultModel.String()),
		)
	}

	dispatcher := llm.NewDispatcher(llm.RetryConfig{
		MaxAttempts: cfg.Pipeline.RetryAttempts,
		BaseDelay:   cfg.Pipeline.RetryBaseDelay,
		MaxDelay:    cfg.Pipeline.RetryMaxDelay,
	}, logger, append([]llm.DispatcherOption{llm.WithMetrics(metrics)}, opts.DispatcherOptions...)...)

	var cache generation.ResultCache = generation.NewMemoryResultCache(cfg.Pipeline.CacheSize, cfg.Pipeline.CacheTTL)
	var sessions generation.SessionStore = generation.NewMemorySessionStore(cfg.Pipeline.SessionSize, cfg.Pipeline.SessionTTL)

	if opts.UseRedis && cfg.Redis.Enabled() {
		remote, err := rediscache.New(cfg.Redis, cfg.Pipeline.CacheTTL, cfg.Pipeline.SessionTTL)
		if err != nil {
			logger.Warn("Failed to connect to Redis, using in-process cache only", zap.Error(err))
		} else {
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
			a.Cache = remote
			cache = generation.NewTieredResultCache(cache, remote, logger)
			sessions = generation.NewTieredSessionStore(sessions, remote)
		}
	}

	engine := opts.Engine
	if engine == nil {
		engine = ocr.NewHTTPEngine(cfg.OCR)
	}

	genOpts := []generation.Option{
		generation.WithMetrics(metrics),
		generation.WithExtractor(ocr.NewExtractor(engine, metrics, logger)),
	}

	if cfg.Pipeline.ArchiveResults {
		archive, err := buildArchive(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Warn("Result archive disabled", zap.Error(err))
		} else {
			genOpts = append(genOpts, generation.WithArchive(archive))
		}
	}

	a.Generator = generation.NewGenerator(a.Backends, dispatcher, cache, sessions, generation.Options{
		DefaultModel:        defaultModel,
		KeyIncludesScenario: cfg.Pipeline.KeyIncludesScenario,
	}, logger, genOpts...)

	return a, nil
}

// Close releases the Redis connection if one was opened
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

func buildBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]llm.Backend, error) {
	var backends []llm.Backend

	if cfg.Claude.APIKey != "" {
		claude, err := llm.NewClaudeClient(llm.Config{
			APIKey:       cfg.Claude.APIKey,
			BaseURL:      cfg.Claude.BaseURL,
			Model:        cfg.Claude.Model,
			MaxTokens:    cfg.Claude.MaxTokens,
			Temperature:  cfg.Claude.Temperature,
			Timeout:      cfg.Claude.Timeout,
			RateLimitRPM: cfg.Claude.RateLimitRPM,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating Claude backend: %w", err)
		}
		backends = append(backends, claude)
	}

	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			MaxTokens:   cfg.Gemini.MaxTokens,
			Temperature: cfg.Gemini.Temperature,
			Timeout:     cfg.Gemini.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating Gemini backend: %w", err)
		}
		backends = append(backends, gemini)
	}

	return backends, nil
}

func buildArchive(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*storage.ArtifactStore, error) {
	bucket, err := storage.OpenBucket(cfg)
	if err != nil {
		return nil, err
	}
	if err := bucket.EnsureExists(ctx); err != nil {
		return nil, err
	}
	logger.Info("Archiving results to object storage",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
	)
	return storage.NewArtifactStore(bucket, cfg.ResultPath, cfg.ScreenshotPath, logger), nil
}
