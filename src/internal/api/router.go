package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a new HTTP router with all API endpoints.
func NewRouter(h *Handler, metrics *Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(Logger(metrics))
	r.Use(LocalOnly)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/identities", h.GetIdentities)
		r.Get("/proxy/bindings", h.GetBindings)
		r.Get("/proxy/config", h.GetProxyConfig)
		r.Post("/reconcile", h.Reconcile)
		r.Get("/health", h.CheckHealth)
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}
