package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teatak/postag/api"
	"github.com/teatak/postag/config"
	logpkg "github.com/teatak/postag/logger"
	"github.com/teatak/postag/metrics"
	"github.com/teatak/postag/model"
	"github.com/teatak/postag/store"
	"github.com/teatak/postag/tagger"
	"github.com/teatak/postag/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting postag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("model", cfg.Model.Path),
	)

	metrics.RegisterDecodeMetrics()

	// loadTagger re-reads the model file; used at startup and by /v1/reload
	loadTagger := func() (*tagger.Tagger, error) {
		m, err := model.Load(cfg.Model.Path)
		if err != nil {
			return nil, err
		}
		opts := []tagger.Option{
			tagger.WithLogger(logger),
			tagger.WithObserver(metrics.DecodeObserver{}),
		}
		if cfg.Model.FallbackTag != "" {
			opts = append(opts, tagger.WithFallback(cfg.Model.FallbackTag))
		}
		return tagger.New(m, opts...)
	}

	t, err := loadTagger()
	if err != nil {
		logger.Fatal("Initial model load failed", zap.Error(err))
	}
	logger.Info("Model loaded",
		zap.Int("tags", len(t.Model().Tags.Labels())),
		zap.Int("vocabulary", len(t.Model().Vocabulary())),
	)

	opts := api.Options{
		MaxTokens: cfg.Decode.MaxTokens,
		MaxBatch:  cfg.Decode.MaxBatch,
		Workers:   cfg.Decode.Workers,
		Reload:    loadTagger,
		Logger:    logger,
	}

	// Pass nil interface (not typed nil pointer) when the log is disabled.
	if cfg.Store.Path != "" {
		st, err := store.New(cfg.Store.Path)
		if err != nil {
			logger.Fatal("Failed to open prediction log", zap.Error(err))
		}
		defer st.Close()
		opts.Log = st
		logger.Info("Prediction log enabled", zap.String("path", cfg.Store.Path))
	}

	server := api.New(t, opts)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
