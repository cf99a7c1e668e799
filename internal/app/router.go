package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/features"
	"github.com/opsdesk/opsdesk/internal/feedback"
	"github.com/opsdesk/opsdesk/internal/members"
	"github.com/opsdesk/opsdesk/internal/orgs"
	"github.com/opsdesk/opsdesk/internal/projects"
	"github.com/opsdesk/opsdesk/internal/roles"
	"github.com/opsdesk/opsdesk/internal/tickets"
)

// NewRouter wires middleware and routes. Coarse permission checks happen here;
// handlers repeat own-aware checks against the loaded row.
func NewRouter(pool *pgxpool.Pool, loader *access.Loader, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()
	auditor := audit.NewWriter(pool)

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.CSRFHeaderName},
		ExposedHeaders:   []string{"Retry-After", apperrors.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	sessionSettings := auth.SessionSettings{
		JWTSecret:    cfg.JWTSecret,
		SessionDays:  cfg.SessionDays,
		IsProduction: isProduction,
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(auth.CSRFMiddleware)

		r.Post("/signup", auth.HandleSignup(pool, auditor, sessionSettings))
		r.With(LoginRateLimitMiddleware(cfg.LoginRateLimit)).Post("/login", auth.HandleLogin(pool, auditor, sessionSettings))
		r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout)
	})

	r.Route("/api/v1/orgs", func(r chi.Router) {
		r.Use(NoCacheMiddleware)
		r.Use(auth.CSRFMiddleware)
		r.Use(auth.RequireAuth)

		r.Post("/", orgs.HandleCreate(pool, auditor))
		r.Get("/", orgs.HandleList(pool))

		r.Route("/{org_id}", func(r chi.Router) {
			r.Use(access.RequireSession(loader, access.SessionOptions{UserID: auth.GetUserID}))

			r.Get("/session", orgs.HandleSession())
			r.With(access.Require(access.NeedSettings(access.SettingsManageOrg))).Get("/audit", orgs.HandleListAudit(pool))

			r.Route("/roles", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(access.Require(access.NeedSettings(access.SettingsView)))
					r.Get("/", roles.HandleList(pool))
					r.Get("/template", roles.HandleTemplate())
					r.Get("/{role_id}", roles.HandleGet(pool))
				})
				r.Group(func(r chi.Router) {
					r.Use(access.Require(access.NeedSettings(access.SettingsManageRoles)))
					r.Post("/", roles.HandleCreate(pool, auditor))
					r.Put("/{role_id}", roles.HandleUpdate(pool, auditor))
					r.Delete("/{role_id}", roles.HandleDelete(pool, auditor))
				})
			})

			r.Route("/members", func(r chi.Router) {
				r.With(access.Require(access.Need(access.ResourceTeam, access.ActionView))).Get("/", members.HandleList(pool))
				r.Group(func(r chi.Router) {
					r.Use(access.Require(access.NeedSettings(access.SettingsManageUsers)))
					r.Post("/", members.HandleAdd(pool, auditor))
					r.Patch("/{member_id}", members.HandleUpdate(pool, auditor))
					r.Delete("/{member_id}", members.HandleRemove(pool, auditor))
				})
			})

			r.Route("/projects", func(r chi.Router) {
				r.With(access.Require(access.NeedOwned(access.ResourceProjects, access.ActionView))).Get("/", projects.HandleList(pool))
				r.With(access.Require(access.Need(access.ResourceProjects, access.ActionCreate))).Post("/", projects.HandleCreate(pool, auditor))
				r.With(access.Require(access.NeedOwned(access.ResourceProjects, access.ActionView))).Get("/{project_id}", projects.HandleGet(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceProjects, access.ActionDelete))).Delete("/{project_id}", projects.HandleDelete(pool, auditor))
			})

			r.Route("/tickets", func(r chi.Router) {
				r.With(access.Require(access.NeedOwned(access.ResourceTickets, access.ActionView))).Get("/", tickets.HandleList(pool))
				r.With(access.Require(access.Need(access.ResourceTickets, access.ActionCreate))).Post("/", tickets.HandleCreate(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceTickets, access.ActionView))).Get("/{ticket_id}", tickets.HandleGet(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceTickets, access.ActionEdit))).Patch("/{ticket_id}", tickets.HandleUpdate(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceTickets, access.ActionDelete))).Delete("/{ticket_id}", tickets.HandleDelete(pool, auditor))
			})

			r.Route("/feedback", func(r chi.Router) {
				r.With(access.Require(access.NeedOwned(access.ResourceFeedback, access.ActionView))).Get("/", feedback.HandleList(pool))
				r.With(access.Require(access.Need(access.ResourceFeedback, access.ActionCreate))).Post("/", feedback.HandleCreate(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceFeedback, access.ActionView))).Get("/{feedback_id}", feedback.HandleGet(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceFeedback, access.ActionDelete))).Delete("/{feedback_id}", feedback.HandleDelete(pool, auditor))
			})

			r.Route("/features", func(r chi.Router) {
				r.With(access.Require(access.NeedOwned(access.ResourceFeatures, access.ActionView))).Get("/", features.HandleList(pool))
				r.With(access.Require(access.Need(access.ResourceFeatures, access.ActionCreate))).Post("/", features.HandleCreate(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceFeatures, access.ActionView))).Get("/{feature_id}", features.HandleGet(pool))
				r.With(access.Require(access.NeedOwned(access.ResourceFeatures, access.ActionDelete))).Delete("/{feature_id}", features.HandleDelete(pool, auditor))
			})
		})
	})

	return r
}

// handleHealthz is the liveness check.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns 503 when the database is unreachable.
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
