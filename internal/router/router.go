package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fogon-pos/api/internal/closure"
	"github.com/fogon-pos/api/internal/config"
	"github.com/fogon-pos/api/internal/handler"
	"github.com/fogon-pos/api/internal/service"
	"github.com/fogon-pos/api/internal/store"
	"github.com/fogon-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, st *store.PG, svc *service.Sessions, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // counter screen dev server
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Kitchen display feed
	r.Get("/ws/branches/{bid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	// Catalog lookups (not branch-scoped: the menu is shared)
	catalogHandler := handler.NewCatalogHandler(svc)
	r.Route("/items", catalogHandler.RegisterRoutes)

	// Branch-scoped routes
	r.Route("/branches/{bid}", func(r chi.Router) {
		orderHandler := handler.NewOrderHandler(svc)
		paymentHandler := handler.NewPaymentHandler(svc, cfg.SupervisorPINHash)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			r.Route("/{id}/payments", paymentHandler.RegisterRoutes)
		})

		closureHandler := handler.NewClosureHandler(st, closure.DefaultPolicy())
		r.Route("/closures", closureHandler.RegisterRoutes)
	})

	return r
}
