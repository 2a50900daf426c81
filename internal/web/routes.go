package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-gate/internal/web/handlers"
	"github.com/kozaktomas/face-gate/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Health)
	matchHandler := handlers.NewMatchHandler(s.deps.Matcher)
	facesHandler := handlers.NewFacesHandler(s.deps.Enroller)
	thresholdsHandler := handlers.NewThresholdsHandler(s.deps.Thresholds)
	statsHandler := handlers.NewStatsHandler(s.deps.Telemetry, s.deps.Profiles, s.deps.Strategies)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		r.Post("/match", matchHandler.Match)
		r.Get("/users/{id}/faces", facesHandler.List)
		r.Get("/thresholds", thresholdsHandler.Get)
		r.Get("/stats", statsHandler.Get)

		// Writes require the API token when one is configured
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.APIToken))

			r.Post("/users/{id}/faces", facesHandler.Enroll)
			r.Delete("/faces/{id}", facesHandler.Delete)
			r.Put("/thresholds", thresholdsHandler.Update)
		})
	})
}
