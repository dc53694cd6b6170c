package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "attribution-monitor")
			next.ServeHTTP(w, req)
		})
	})

	origins := defaultOrigins
	if h.config != nil && len(h.config.Server.AllowedOrigins) > 0 {
		origins = h.config.Server.AllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Cache", "X-Run-Id", "X-Skipped-Apps", "X-Skipped-Reasons"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	if h.health != nil {
		r.Get("/health/ready", h.health.HandleReadiness)
	}
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Reports
		r.Post("/stats", h.RunStats)
		r.Post("/fraud", h.RunFraud)
		r.Get("/overview", h.GetOverview)

		// Inventory and event selections
		r.Get("/apps", h.ListApps)
		r.Get("/apps/{appID}/events", h.GetAppEvents)
		r.Post("/apps/{appID}/active", h.SetAppActive)
		r.Get("/event-selections", h.ListSelections)
		r.Post("/event-selections", h.SaveSelections)

		// Cache
		r.Post("/cache/clear", h.ClearCache)
		r.Post("/cache/clear/{kind}", h.ClearCache)
	})

	return r
}
