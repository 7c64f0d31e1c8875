package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds optional router settings.
type RouterConfig struct {
	// CORSOrigins lists allowed origins. Nil allows localhost only.
	CORSOrigins []string
}

// Router builds the HTTP handler. It starts no goroutines, so it can be
// served with httptest directly.
func (h *Host) Router(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.handleStats)

		r.Post("/agents", h.handleRegister)
		r.Get("/agents/{id}", h.handleGetAgent)
		r.Put("/agents/{id}/position", h.handleReport)
		r.Delete("/agents/{id}", h.handleRemove)

		r.Post("/avoidance", h.handleAvoidance)
		r.Post("/recenter", h.handleRecenter)
	})

	return r
}
