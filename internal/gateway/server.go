package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flemzord/tgbridge/internal/metrics"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(g.gatherer))
	}
	// Signed by the host; the signature is its authentication.
	if g.webhook != nil {
		r.Post("/webhook", g.webhook.ServeHTTP)
	}

	auth := g.config.Auth.IsConfigured()
	r.Group(func(r chi.Router) {
		if auth {
			r.Use(authMiddleware(g.config.Auth, g.authLimiter(), g.logger))
		}
		r.Get("/status", g.handleStatus())
		if g.events != nil {
			r.Handle("/events", g.events.Handler())
		}

		// Operator API changes state and is only mounted behind auth.
		if auth {
			r.Route("/api", func(r chi.Router) {
				if g.sender != nil {
					r.Post("/messages", g.handleSendMessage())
				}
				if g.jobs != nil {
					r.Post("/jobs/{name}", g.handleRunJob())
				}
			})
		}
	})

	return r
}
