package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/readshelf/readshelf/internal/middleware"
	"github.com/readshelf/readshelf/internal/setup"
)

// New wires all routes. Rate limiters attached with .Use cover every
// endpoint of that group combined, so the email-sending endpoints get
// their own group with a tighter budget.
func New(deps *setup.Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(chi_middleware.Compress(5))
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders(true))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Public.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := deps.Handler

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		// Endpoints that send email share a tight per-IP budget.
		r.Group(func(r chi.Router) {
			r.Use(deps.MailLimiter.Middleware)
			r.Post("/register", h.Register)
			r.Post("/password-reset", h.ForgotPassword)
		})

		// Credential and token consumption endpoints, brute-force bound.
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthLimiter.Middleware)
			r.Post("/login", h.Login)
			r.Get("/activate/{token}", h.Activate)
			r.Post("/password-reset/{token}", h.ResetPassword)
		})

		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

// Server builds an http.Server with sane timeouts around the router.
func Server(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
