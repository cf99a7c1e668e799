package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/validation"
	"github.com/rs/zerolog/log"
)

// SessionSettings configures the cookies issued at signup and login.
type SessionSettings struct {
	JWTSecret    string
	SessionDays  int
	IsProduction bool
}

// CredentialsRequest is the body of signup and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned after signup and login.
type SessionResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	CSRFToken string    `json:"csrf_token"`
}

func decodeCredentials(r *http.Request) (CredentialsRequest, error) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	req.Email = validation.NormalizeEmail(req.Email)
	return req, nil
}

// startSession issues the session and CSRF cookies.
func startSession(w http.ResponseWriter, r *http.Request, settings SessionSettings, userID uuid.UUID, email string, status int) {
	token, err := CreateToken(userID, settings.JWTSecret, settings.SessionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		apperrors.WriteInternalError(w, r, "Failed to create session")
		return
	}
	csrfToken, err := GenerateCSRFToken()
	if err != nil {
		log.Error().Err(err).Msg("Failed to create CSRF token")
		apperrors.WriteInternalError(w, r, "Failed to create session")
		return
	}

	SetSessionCookie(w, token, settings.SessionDays, settings.IsProduction)
	SetCSRFCookie(w, csrfToken, settings.SessionDays, settings.IsProduction)

	apperrors.WriteSuccess(w, r, status, SessionResponse{
		UserID:    userID,
		Email:     email,
		CSRFToken: csrfToken,
	})
}

// HandleSignup handles POST /api/v1/auth/signup
func HandleSignup(pool *pgxpool.Pool, auditor *audit.Writer, settings SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeCredentials(r)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if err := validation.ValidateEmail(req.Email); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid email address")
			return
		}
		if err := ValidatePassword(req.Password); err != nil {
			apperrors.WriteBadRequest(w, r, passwordMessage(err))
			return
		}

		userID, err := NewService(pool).CreateUser(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}
			log.Error().Err(err).Msg("Failed to create user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserSignup(r.Context(), userID, req.Email); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to write audit log")
		}

		log.Info().Str("user_id", userID.String()).Msg("User signed up")
		startSession(w, r, settings, userID, req.Email, http.StatusCreated)
	}
}

// HandleLogin handles POST /api/v1/auth/login
func HandleLogin(pool *pgxpool.Pool, auditor *audit.Writer, settings SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeCredentials(r)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		userID, err := NewService(pool).Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				log.Debug().Str("email", req.Email).Msg("Login failed")
				if err := auditor.LogLoginFailed(r.Context(), req.Email, r.RemoteAddr); err != nil {
					log.Error().Err(err).Msg("Failed to write audit log")
				}
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Msg("Failed to authenticate user")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		log.Info().Str("user_id", userID.String()).Msg("User logged in")
		startSession(w, r, settings, userID, req.Email, http.StatusOK)
	}
}

// HandleLogout handles POST /api/v1/auth/logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)
	ClearCSRFCookie(w)

	if userID := GetUserID(r.Context()); userID != uuid.Nil {
		log.Info().Str("user_id", userID.String()).Msg("User logged out")
	}

	w.WriteHeader(http.StatusNoContent)
}
