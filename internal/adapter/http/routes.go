package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/orchestrate", h.HandleOrchestrate)
		r.Get("/models", h.HandleListModels)
		r.Get("/health", h.HandleHealth)

		if h.Hub != nil {
			r.Get("/ws", h.Hub.HandleWS)
		}
	})
}
