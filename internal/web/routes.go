package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/search"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/web/handlers"
)

func (s *Server) setupRoutes(store *database.Store, resolver *search.Resolver, gatherer prometheus.Gatherer) {
	jobsHandler := handlers.NewJobsHandler(store, s.config.Library.Scope)
	searchHandler := handlers.NewSearchHandler(resolver, s.config.Library.Scope)
	albumsHandler := handlers.NewAlbumsHandler(store, s.config.Library.Scope)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	s.router.Handle("/metrics", metricsHandler)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", jobsHandler.TriggerScan)
		r.Post("/process", jobsHandler.TriggerProcess)
		r.Get("/jobs", jobsHandler.List)
		r.Get("/jobs/{id}", jobsHandler.Get)
		r.Delete("/jobs/{id}", jobsHandler.Cancel)

		r.Get("/search", searchHandler.Search)
		r.Post("/ask", searchHandler.Ask)

		r.Get("/albums", albumsHandler.List)
	})
}
