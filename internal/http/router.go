// Package httpapi assembles the chi router for the public API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/yoppiari/loopingflow/internal/http/handlers"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(allowedOrigins(cfg)),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))

		r.Get("/v1/me", app.Me)
		r.Get("/v1/stats", app.StatsSummary)

		r.Route("/v1/assets", func(r chi.Router) {
			r.Post("/", app.AssetsUpload)
			r.Get("/{id}", app.AssetGet)
			r.Get("/{id}/download", app.AssetDownload)
			r.Delete("/{id}", app.AssetDelete)
		})

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobsCreate)
			r.Post("/estimate", app.JobsEstimate)
			r.Get("/", app.JobsList)
			r.Get("/{job_id}", app.JobStatus)
			r.Post("/{job_id}/cancel", app.JobCancel)
			r.Get("/{job_id}/bundle", app.JobBundle)

			r.Route("/{job_id}/layers", func(r chi.Router) {
				r.Post("/", app.LayersAdd)
				r.Get("/", app.LayersList)
				r.Patch("/{layer_id}", app.LayersUpdate)
				r.Delete("/{layer_id}", app.LayersDelete)
			})
		})
	})

	return r
}

// allowedOrigins lists browser origins for CORS. Production traffic arrives
// through the proxy layer, which enforces its own origin policy.
func allowedOrigins(cfg *infra.Config) []string {
	if cfg.AppEnv == "development" {
		return []string{"http://localhost:3000", "http://localhost:5173"}
	}
	return nil
}
