/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend clients

ROUTE GROUPS:
  /api/purchases/*       Eligibility checks and purchase commits
  /api/availability      Nearby stock search
  /api/items/*           Critical item catalog and rationing rules
  /api/individuals/*     Registered individuals and purchase history
  /api/locations/*       Store locations and stock levels
  /metrics               Prometheus scrape endpoint
  /api/health            Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Purchase routes
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/check", h.CheckPurchase)
			r.Post("/", h.CommitPurchase)
		})

		// Availability search
		r.Get("/availability", h.SearchAvailability)

		// Catalog routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}/restriction", h.SetRestriction)
			r.Delete("/{id}/restriction", h.ClearRestriction)
			r.Get("/{id}/restriction/history", h.RestrictionHistory)
		})

		// Individual routes
		r.Route("/individuals", func(r chi.Router) {
			r.Get("/", h.ListIndividuals)
			r.Post("/", h.CreateIndividual)
			r.Get("/{id}/purchases", h.PurchaseHistory)
		})

		// Location and stock routes
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", h.ListLocations)
			r.Post("/", h.CreateLocation)
			r.Put("/{id}/stock/{itemID}", h.UpsertStock)
		})

		r.Get("/health", h.Health)
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
