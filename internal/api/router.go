// Package api exposes the admin HTTP surface: status inspection, settings
// changes, connection tests, manual refreshes, and webhook management.
package api

import (
	"log/slog"
	"net/http"

	"github.com/halvden/jellywatch/internal/api/middleware"
	"github.com/halvden/jellywatch/internal/pipeline"
	"github.com/halvden/jellywatch/internal/scheduler"
	"github.com/halvden/jellywatch/internal/settings"
	"github.com/halvden/jellywatch/internal/webhook"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Store          *settings.Store
	Pipeline       *pipeline.Pipeline
	Scheduler      *scheduler.Scheduler
	WebhookService *webhook.Service
	Auth           *middleware.TokenAuth
	Logger         *slog.Logger
}

// Router sets up all HTTP routes for the application.
type Router struct {
	store          *settings.Store
	pipeline       *pipeline.Pipeline
	scheduler      *scheduler.Scheduler
	webhookService *webhook.Service
	auth           *middleware.TokenAuth
	logger         *slog.Logger
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		store:          deps.Store,
		pipeline:       deps.Pipeline,
		scheduler:      deps.Scheduler,
		webhookService: deps.WebhookService,
		auth:           deps.Auth,
		logger:         deps.Logger,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth)
	mux.HandleFunc("GET /api/v1/health", r.handleHealth)

	// Protected routes
	mux.HandleFunc("GET /api/v1/status", r.protected(r.handleStatus))
	mux.HandleFunc("PUT /api/v1/settings", r.protected(r.handleUpdateSettings))
	mux.HandleFunc("POST /api/v1/test", r.protected(r.handleTestConnection))
	mux.HandleFunc("POST /api/v1/refresh", r.protected(r.handleRefresh))
	mux.HandleFunc("POST /api/v1/target", r.protected(r.handleSetupTarget))
	mux.HandleFunc("GET /api/v1/webhooks", r.protected(r.handleListWebhooks))
	mux.HandleFunc("POST /api/v1/webhooks", r.protected(r.handleCreateWebhook))
	mux.HandleFunc("GET /api/v1/webhooks/{id}", r.protected(r.handleGetWebhook))
	mux.HandleFunc("PUT /api/v1/webhooks/{id}", r.protected(r.handleUpdateWebhook))
	mux.HandleFunc("DELETE /api/v1/webhooks/{id}", r.protected(r.handleDeleteWebhook))

	return middleware.Logging(r.logger)(mux)
}

func (r *Router) protected(h http.HandlerFunc) http.HandlerFunc {
	wrapped := r.auth.Middleware(h)
	return func(w http.ResponseWriter, req *http.Request) {
		wrapped.ServeHTTP(w, req)
	}
}
