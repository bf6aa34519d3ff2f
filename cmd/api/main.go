package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/telemed/dr-ai-service/internal/api/router"
	"github.com/telemed/dr-ai-service/internal/assistant"
	"github.com/telemed/dr-ai-service/internal/audit"
	appconfig "github.com/telemed/dr-ai-service/internal/config"
	"github.com/telemed/dr-ai-service/internal/encounter"
	"github.com/telemed/dr-ai-service/internal/http/handlers"
	"github.com/telemed/dr-ai-service/internal/observability/metrics"
	"github.com/telemed/dr-ai-service/internal/policy"
	"github.com/telemed/dr-ai-service/internal/ratelimit"
	"github.com/telemed/dr-ai-service/internal/safety"
	"github.com/telemed/dr-ai-service/pkg/logging"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dr-ai-service API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Postgres: pgx pool for encounter reads, database/sql for the audit sink.
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	// Rate limiter: Redis-backed when configured, in-process otherwise.
	limits := ratelimit.Limits{
		PerMinuteByPatient: cfg.RateLimitPatientPerMin,
		PerMinuteByIP:      cfg.RateLimitIPPerMin,
	}
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		limiter = ratelimit.NewRedisLimiter(rdb, limits, logger)
		logger.Info("using redis rate limiter", "addr", cfg.RedisAddr)
	} else {
		limiter = ratelimit.NewMemoryLimiter(limits)
		logger.Warn("REDIS_ADDR not set, using in-process rate limiter")
	}

	// Policy documents with built-in conservative defaults.
	safetyStore := policy.NewSafetyStore(cfg.SafetyPolicyPath, logger)
	consultationStore := policy.NewConsultationStore(cfg.ConsultationPolicyPath, logger)
	validator := safety.NewValidator(safetyStore)

	answerMetrics := metrics.NewAnswerMetrics(prometheus.DefaultRegisterer)

	// Model clients: a distinct fallback model is optional.
	primary, err := assistant.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.PrimaryModel)
	if err != nil {
		logger.Error("failed to create primary model client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = primary.Close() }()

	var fallback assistant.LLMClient
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.PrimaryModel {
		fb, err := assistant.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.FallbackModel)
		if err != nil {
			logger.Error("failed to create fallback model client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = fb.Close() }()
		fallback = fb
	}

	invoker := assistant.NewInvoker(primary, fallback, validator, answerMetrics, logger, assistant.InvokerConfig{
		Timeout:     cfg.ModelTimeout,
		MaxRetries:  cfg.ModelMaxRetries,
		Temperature: float32(cfg.ModelTemperature),
		MaxTokens:   int32(cfg.ModelMaxTokens),
	})

	encounters := encounter.NewPostgresRepository(pool)
	sink := audit.NewSink(auditDB, cfg.PseudonymSalt, logger)

	service := assistant.NewService(limiter, validator, consultationStore, encounters, invoker, sink, answerMetrics, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		AnswerHandler:  handlers.NewAnswerHandler(service, logger),
		PolicyHandler:  handlers.NewPolicyHandler(safetyStore, consultationStore, logger),
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
