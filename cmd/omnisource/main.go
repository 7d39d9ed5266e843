package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/omnisource/internal/config"
	dbRedis "github.com/kailas-cloud/omnisource/internal/db/redis"
	structuredengine "github.com/kailas-cloud/omnisource/internal/engine/structured"
	unstructuredengine "github.com/kailas-cloud/omnisource/internal/engine/unstructured"
	logpkg "github.com/kailas-cloud/omnisource/internal/logger"
	"github.com/kailas-cloud/omnisource/internal/metrics"
	analyticsrepo "github.com/kailas-cloud/omnisource/internal/repository/analytics"
	conversationrepo "github.com/kailas-cloud/omnisource/internal/repository/conversation"
	chiTransport "github.com/kailas-cloud/omnisource/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/omnisource/internal/transport/openai"
	analyticsuc "github.com/kailas-cloud/omnisource/internal/usecase/analytics"
	dispatchuc "github.com/kailas-cloud/omnisource/internal/usecase/dispatch"
	healthuc "github.com/kailas-cloud/omnisource/internal/usecase/health"
	orchestratoruc "github.com/kailas-cloud/omnisource/internal/usecase/orchestrator"
	routeuc "github.com/kailas-cloud/omnisource/internal/usecase/route"
	synthesisuc "github.com/kailas-cloud/omnisource/internal/usecase/synthesis"
	"github.com/kailas-cloud/omnisource/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting omnisource API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register turn metrics explicitly (no init())
	metrics.RegisterTurnMetrics()

	// Shared reasoning client. Op views share the limiter and retry
	// policy but label metrics per call site.
	reasoner := openaiTransport.NewReasoner(&openaiTransport.Config{
		APIKey:       cfg.Reasoning.APIKey,
		BaseURL:      cfg.Reasoning.BaseURL,
		Model:        cfg.Reasoning.Model,
		Timeout:      time.Duration(cfg.Reasoning.TimeoutSec) * time.Second,
		MaxRetries:   cfg.Reasoning.MaxRetries,
		RateLimitRPS: cfg.Reasoning.RateLimitRPS,
		RateBurst:    cfg.Reasoning.RateBurst,
		Logger:       logger,
	})

	embedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	// Engines — composition root
	tabularDB, err := sql.Open("sqlite", cfg.Engines.Structured.DSN)
	if err != nil {
		logger.Fatal("Failed to open tabular database", zap.Error(err))
	}
	defer func() { _ = tabularDB.Close() }()

	structured, err := structuredengine.New(ctx, tabularDB, reasoner.Op("generate_sql"), structuredengine.Config{
		Table:   cfg.Engines.Structured.Table,
		MaxRows: cfg.Engines.Structured.MaxRows,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create structured engine", zap.Error(err))
	}
	unstructured := unstructuredengine.New(store, embedder, cfg.Engines.Unstructured.Index, logger)
	logger.Info("Engines created",
		zap.String("table", cfg.Engines.Structured.Table),
		zap.String("index", cfg.Engines.Unstructured.Index),
	)

	// Repositories
	convRepo := conversationrepo.New(store, cfg.Storage.KeyPrefix)
	analyticsRepo := analyticsrepo.New(store, cfg.Storage.KeyPrefix)

	// Use case services
	routerSvc := routeuc.New(reasoner.Op("classify"), cfg.Router.HistoryWindow)
	dispatchSvc := dispatchuc.New(structured, unstructured,
		cfg.Engines.Unstructured.TopK, cfg.Dispatch.MaxEvidence, cfg.Dispatch.MaxRetries)
	synthesisSvc := synthesisuc.New(reasoner.Op("synthesize"), synthesisuc.Config{
		MaxTokens:     cfg.Reasoning.MaxTokens,
		Temperature:   cfg.Reasoning.Temperature,
		HistoryWindow: cfg.Router.HistoryWindow,
	})
	orchestratorSvc := orchestratoruc.New(
		routerSvc, dispatchSvc, synthesisSvc, convRepo, analyticsRepo,
		cfg.Conversation.HistoryLimit,
	)
	analyticsSvc := analyticsuc.New(analyticsRepo)
	healthSvc := healthuc.New(store, map[string]healthuc.ComponentChecker{
		"reasoning":  reasoner,
		"structured": structured,
		"index":      unstructured,
	})

	// Chi server
	server := chiTransport.NewServer(orchestratorSvc, analyticsSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
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

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
