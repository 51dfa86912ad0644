package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/testforge/casegen/internal/api"
	"github.com/testforge/casegen/internal/app"
	"github.com/testforge/casegen/internal/config"
	"github.com/testforge/casegen/internal/observability"
)

func main() {
	// Missing .env is fine in deployed environments
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(string(cfg.Env), cfg.GetLogLevel())
	defer logger.Sync()

	logger.Info("Starting casegen API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.Env)),
	)

	ctx := context.Background()
	metrics := observability.NewMetrics(cfg.App.Name)

	pipeline, err := app.New(ctx, cfg, metrics, logger, app.Options{UseRedis: true})
	if err != nil {
		logger.Fatal("Failed to build generation pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	logger.Info("Model backends ready", zap.Any("backends", pipeline.Backends.Names()))

	routerCfg := api.RouterConfig{
		Generator:      pipeline.Generator,
		Metrics:        metrics,
		Logger:         logger,
		ServiceName:    cfg.App.Name + "-api",
		EnableCORS:     cfg.Security.CORSEnabled,
		AllowedOrigins: cfg.Security.CORSAllowedOrigins,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if pipeline.Cache != nil {
		routerCfg.Cache = pipeline.Cache
	}
	router := api.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// In-flight generations finish or are cut at the timeout
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("Server stopped gracefully")
	}
}

// initLogger creates a configured zap logger
func initLogger(env, level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if env == string(config.EnvProduction) {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
