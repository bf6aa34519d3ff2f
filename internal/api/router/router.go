package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/telemed/dr-ai-service/internal/http/handlers"
	"github.com/telemed/dr-ai-service/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	AnswerHandler  *handlers.AnswerHandler
	PolicyHandler  *handlers.PolicyHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/ai", func(api chi.Router) {
		api.Post("/answers", cfg.AnswerHandler.HandleAnswer)
		if cfg.PolicyHandler != nil {
			api.Post("/policies/reload", cfg.PolicyHandler.HandleReload)
		}
	})

	return r
}
