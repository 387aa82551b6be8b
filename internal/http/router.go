package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ecopoints/internal/auth"
	"ecopoints/internal/config"
	"ecopoints/internal/importer"
	"ecopoints/internal/points"
)

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, sessions *auth.Service, providers map[auth.Provider]auth.ProviderAdapter, pointsSvc *points.Service, imp *importer.CSVImporter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	authHandler := NewAuthHandler(sessions, logger)
	oauthHandler := NewOAuthHandler(providers, sessions, cfg.PublicBaseURL, cfg.Environment, logger)
	pointsHandler := NewPointsHandler(pointsSvc, imp, logger)

	if len(providers) == 0 {
		logger.Warn("no oauth providers configured; social login endpoints will return 404")
	}

	// Credential and OAuth endpoints are brute-force targets.
	authLimiter := tollbooth.NewLimiter(5, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	authLimiter.SetIPLookups([]string{"RemoteAddr", "X-Forwarded-For", "X-Real-IP"})

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(authLimiter))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.SignUp)
			r.Post("/login", authHandler.SignIn)
			r.Post("/logout", authHandler.Logout)
		})

		r.Route("/oauth", func(r chi.Router) {
			r.Get("/{provider}", oauthHandler.Begin)
			r.Get("/{provider}/callback", oauthHandler.Callback)
			r.Post("/{provider}/callback", oauthHandler.Callback)
			r.Post("/login/{provider}", oauthHandler.DirectLogin)
		})
	})

	r.Get("/materials", pointsHandler.Materials)

	r.Route("/api", func(r chi.Router) {
		r.Use(newSessionMiddleware(sessions, logger))
		r.Use(requireUser)

		r.Get("/me", pointsHandler.Me)
		r.Route("/points", func(r chi.Router) {
			r.Get("/balance", pointsHandler.Balance)
			r.Get("/history", pointsHandler.History)
			r.Get("/history.csv", pointsHandler.ExportHistory)
			r.Post("/transfer", pointsHandler.Transfer)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleCooperative, auth.RoleAdmin))
				r.Post("/recycle", pointsHandler.Recycle)
				r.Post("/import", pointsHandler.ImportDropOffs)
			})
		})
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}

func rateLimit(lmt *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}
