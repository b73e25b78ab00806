package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the panel's HTTP router: job and history projections,
// command endpoints, health check and the Prometheus metrics endpoint.
func NewRouter(state StateReader, files FileLoader, commands Commander, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	h := NewPanelHandler(state, files, commands, logger)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Post("/", h.CreateJob)
		r.Get("/{jobID}", h.GetJob)
		r.Delete("/{jobID}", h.CancelJob)
		r.Get("/{jobID}/logs", h.GetJobLogs)
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.ListHistory)
		r.Get("/{jobID}/files", h.ListFiles)
	})

	r.Get("/state", h.GetState)
	r.Put("/view", h.SetListView)

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Get("/providers", h.ListProviders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
