package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gopos/handler"
	"github.com/mstgnz/gopos/infra/metrics"
	"github.com/mstgnz/gopos/infra/middle"
	"github.com/mstgnz/gopos/infra/response"
	v1 "github.com/mstgnz/gopos/router/v1"

	// Import for side-effect registration
	_ "github.com/mstgnz/gopos/provider/akbank"
	_ "github.com/mstgnz/gopos/provider/estpos"
	_ "github.com/mstgnz/gopos/provider/garanti"
	_ "github.com/mstgnz/gopos/provider/kuveytpos"
)

// Config carries what Routes mounts. Limiter may be nil to disable rate
// limiting.
type Config struct {
	APIKey   string
	Limiter  middle.Limiter
	Handlers v1.Handlers
	Health   *handler.HealthHandler
}

// Routes mounts the public endpoints (health, metrics, bank callbacks) and
// the authenticated /v1 API.
func Routes(r chi.Router, cfg Config) {
	if cfg.Health != nil {
		r.Get("/health", cfg.Health.CheckHealth)
	}
	r.Handle("/metrics", metrics.Handler())

	// Banks post the 3-D result from the cardholder's browser, some with GET.
	r.Route("/callback/{gateway}/{session}", func(r chi.Router) {
		r.Post("/", cfg.Handlers.Payment.HandleCallback)
		r.Get("/", cfg.Handlers.Payment.HandleCallback)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.AuthMiddleware(cfg.APIKey))
		if cfg.Limiter != nil {
			r.Use(middle.RateLimitMiddleware(cfg.Limiter))
		}
		v1.Routes(r, cfg.Handlers)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
}
