// Package main is the entry point for the FlexiShop storefront server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/flexishop/internal/auth"
	"github.com/vyrodovalexey/flexishop/internal/catalog"
	"github.com/vyrodovalexey/flexishop/internal/config"
	"github.com/vyrodovalexey/flexishop/internal/render"
	"github.com/vyrodovalexey/flexishop/internal/server"
	"github.com/vyrodovalexey/flexishop/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use a basic logger for startup errors
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("auth_mode", cfg.AuthMode),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
		zap.String("catalog_source", cfg.CatalogSource),
		zap.String("storage_backend", cfg.StorageBackend),
	)

	authenticator, err := auth.New(auth.Mode(cfg.AuthMode), cfg.BasicAuthUsers, cfg.APIKeys)
	if err != nil {
		logger.Error("failed to create authenticator", zap.Error(err))
		return 1
	}

	kv, err := store.Open(store.Options{
		Backend:        cfg.StorageBackend,
		DataDir:        cfg.DataDir,
		RedisURL:       cfg.RedisURL,
		RedisNamespace: cfg.RedisNamespace,
		SQLitePath:     cfg.SQLitePath,
	})
	if err != nil {
		logger.Error("failed to open session store", zap.Error(err))
		return 1
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warn("failed to close session store", zap.Error(err))
		}
	}()

	renderer, err := render.New()
	if err != nil {
		logger.Error("failed to parse templates", zap.Error(err))
		return 1
	}

	cat := buildCatalog(context.Background(), cfg, logger)

	srv := server.New(cfg, logger, server.Deps{
		Catalog:       cat,
		Store:         kv,
		Renderer:      renderer,
		Authenticator: authenticator,
	})

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// catalogSource picks the reader for cfg.CatalogSource.
func catalogSource(cfg *config.Config) catalog.Source {
	if cfg.CatalogSource == "http" {
		return catalog.NewHTTPSource(cfg.CatalogRoot, &http.Client{Timeout: cfg.CatalogTimeout})
	}
	return catalog.NewFileSource(cfg.CatalogRoot)
}

// buildCatalog loads the product list once. A failed load leaves the shop
// running with an unavailable catalog instead of refusing to start.
func buildCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) *catalog.Store {
	ctx, cancel := context.WithTimeout(ctx, cfg.CatalogTimeout)
	defer cancel()

	loader := &catalog.Loader{
		Source:   catalogSource(cfg),
		Primary:  cfg.CatalogPath,
		Fallback: cfg.CatalogFallbackPath,
		Logger:   logger,
	}

	products, err := loader.Load(ctx)
	if err != nil {
		logger.Error("catalog unavailable", zap.Error(err))
		return catalog.NewUnavailableStore(err)
	}

	cat, err := catalog.NewStore(products)
	if err != nil {
		logger.Error("catalog rejected", zap.Error(err))
		return catalog.NewUnavailableStore(err)
	}

	rewritten := cat.AdjustImagePaths(cfg.AssetPrefix, cfg.NestedPrefix)
	logger.Info("catalog ready",
		zap.Int("products", cat.Len()),
		zap.Int("images_rewritten", rewritten),
	)

	return cat
}
