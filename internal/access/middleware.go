package access

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/rs/zerolog/log"
)

// SessionOptions configures RequireSession.
type SessionOptions struct {
	// UserID returns the signed-in user, or uuid.Nil.
	UserID func(ctx context.Context) uuid.UUID

	// OrgParam is the chi URL parameter holding the organization id.
	OrgParam string

	// LoginPath, when set, makes unauthenticated requests redirect there with
	// the original location in the "next" query parameter instead of a 401.
	LoginPath string

	// RetryAfterSeconds is advertised when the session could not be loaded.
	RetryAfterSeconds int
}

// RequireSession is the authentication guard for organization routes. It loads
// the member's session and attaches it to the request context.
func RequireSession(loader *Loader, opts SessionOptions) func(http.Handler) http.Handler {
	if opts.OrgParam == "" {
		opts.OrgParam = "org_id"
	}
	if opts.RetryAfterSeconds <= 0 {
		opts.RetryAfterSeconds = 5
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			guard := NewAuthGuard()

			userID := opts.UserID(ctx)
			var session *Session
			var err error
			if userID != uuid.Nil {
				orgID, parseErr := uuid.Parse(chi.URLParam(r, opts.OrgParam))
				if parseErr != nil {
					apperrors.WriteBadRequest(w, r, "Invalid organization ID")
					return
				}
				session, err = loader.Load(ctx, orgID, userID)
				if errors.Is(err, ErrNotMember) {
					log.Debug().
						Str("user_id", userID.String()).
						Str("org_id", orgID.String()).
						Msg("Access: user is not a member of organization")
					apperrors.WriteNotFound(w, r, "Organization not found")
					return
				}
			}

			switch guard.Resolve(userID, session, err) {
			case AuthAuthenticated:
				next.ServeHTTP(w, r.WithContext(WithSession(ctx, guard.Session())))
			case AuthUnauthenticated:
				if opts.LoginPath != "" {
					http.Redirect(w, r, loginRedirect(opts.LoginPath, r), http.StatusSeeOther)
					return
				}
				apperrors.WriteUnauthorized(w, r, "Authentication required")
			case AuthError:
				log.Error().Err(guard.Err()).Str("path", r.URL.Path).Msg("Failed to load access session")
				apperrors.WriteRetryLater(w, r, opts.RetryAfterSeconds, "Could not load permissions, please retry")
			default:
				apperrors.WriteRetryLater(w, r, opts.RetryAfterSeconds, "Permissions are still loading, please retry")
			}
		})
	}
}

func loginRedirect(loginPath string, r *http.Request) string {
	q := url.Values{}
	q.Set("next", r.URL.RequestURI())
	return loginPath + "?" + q.Encode()
}

// Denied configures what a permission guard does on denial. RedirectTo wins
// over Fallback; with neither set a generic "Access Denied" response is written.
type Denied struct {
	RedirectTo string
	Fallback   http.Handler
}

// RequirePermission is the permission guard. It must run after RequireSession.
func RequirePermission(req Requirement, denied Denied) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := FromContext(r.Context())

			switch ResolvePermission(session, req) {
			case PermissionAllowed:
				next.ServeHTTP(w, r)
			case PermissionDenied:
				log.Debug().
					Str("member_id", session.MemberID().String()).
					Str("org_id", session.OrgID().String()).
					Str("requirement", req.String()).
					Str("path", r.URL.Path).
					Msg("Access: permission denied")
				switch {
				case denied.RedirectTo != "":
					http.Redirect(w, r, denied.RedirectTo, http.StatusSeeOther)
				case denied.Fallback != nil:
					denied.Fallback.ServeHTTP(w, r)
				default:
					apperrors.WriteAccessDenied(w, r, "Access Denied")
				}
			default:
				// No session yet: nothing is rendered.
				w.WriteHeader(http.StatusForbidden)
			}
		})
	}
}

// Require is shorthand for RequirePermission with the default denial response.
func Require(req Requirement) func(http.Handler) http.Handler {
	return RequirePermission(req, Denied{})
}
