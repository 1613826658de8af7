package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/metrics"
)

const defaultMaxBodyBytes int64 = 32 << 20

type RouterConfig struct {
	Logger          *zap.Logger
	AuthValidator   middleware.AuthValidator
	DocumentHandler *handlers.DocumentHandler
	AskHandler      *handlers.AskHandler
	// AuthHandler and HistoryHandler are nil when no database is
	// configured; their routes are not mounted then.
	AuthHandler     *handlers.AuthHandler
	HistoryHandler  *handlers.HistoryHandler
	MaxBodyBytes    int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID(logger))
	r.Use(middleware.SentryMiddleware)
	r.Use(metrics.Middleware())
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Upload)
			r.Get("/", cfg.DocumentHandler.List)
		})
		r.Post("/ask", cfg.AskHandler.Ask)
		r.Post("/reset", cfg.DocumentHandler.Reset)

		if cfg.AuthHandler != nil {
			r.Route("/apikeys", func(r chi.Router) {
				r.Post("/", cfg.AuthHandler.CreateAPIKey)
				r.Get("/", cfg.AuthHandler.ListAPIKeys)
				r.Delete("/{id}", cfg.AuthHandler.RevokeAPIKey)
			})
		}
		if cfg.HistoryHandler != nil {
			r.Get("/history", cfg.HistoryHandler.List)
		}
	})

	return r
}
