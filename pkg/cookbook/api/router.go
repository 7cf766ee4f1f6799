package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// NewRouter assembles the full API surface under /api/v1
func NewRouter(service cookbook.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "healthy"})
	})

	cookbooks := NewCookbookHandler(service)
	artifacts := NewArtifactHandler(service)
	repositories := NewRepositoryHandler(service)
	publishers := NewPublishHandler(service)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/cookbooks", cookbooks.Routes())
		r.Mount("/artifacts", artifacts.Routes())
		r.Mount("/repositories", repositories.Routes())
		r.Mount("/publishers", publishers.Routes())
		r.Mount("/tasks", publishers.TaskRoutes())
		r.Mount("/publications", publishers.PublicationRoutes())
	})

	return r
}
