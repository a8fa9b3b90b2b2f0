package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/harhit22/new-auto-attendace/internal/web/handlers"
	"github.com/harhit22/new-auto-attendace/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Gallery, s.deps.ModelStatus, s.deps.Health...)
	verifyHandler := handlers.NewVerifyHandler(s.deps.Pipeline, s.deps.Gallery, s.logger)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Enroller, s.deps.Identities, s.deps.Gallery, s.deps.Publisher, s.logger)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", healthHandler.Get)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(s.config.APIKeys))

		r.Post("/verify", verifyHandler.Verify)
		r.Post("/identify", verifyHandler.Identify)

		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities/{id}/enroll", identitiesHandler.Enroll)
		r.Delete("/identities/{id}", identitiesHandler.Delete)
	})
}
