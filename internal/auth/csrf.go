package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/rs/zerolog/log"
)

const (
	// CSRFCookieName is readable by the browser client, which echoes it in CSRFHeaderName.
	CSRFCookieName = "od_csrf"
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenBytes = 32
)

var (
	ErrCSRFMissing  = errors.New("missing CSRF token")
	ErrCSRFMismatch = errors.New("CSRF token mismatch")
)

// GenerateCSRFToken returns a base64url-encoded random token.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetCSRFCookie stores the double-submit token next to the session cookie.
func SetCSRFCookie(w http.ResponseWriter, token string, sessionDays int, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionDays * 24 * 60 * 60,
		HttpOnly: false,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCSRFCookie expires the CSRF cookie.
func ClearCSRFCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
}

// ValidateCSRF compares the header token against the cookie token.
func ValidateCSRF(r *http.Request) error {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return ErrCSRFMissing
	}
	header := r.Header.Get(CSRFHeaderName)
	if header == "" {
		return ErrCSRFMissing
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// CSRFMiddleware rejects state-changing requests from cookie sessions that lack a matching token.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) || GetSessionCookie(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		if err := ValidateCSRF(r); err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("CSRF check failed")
			apperrors.WriteForbidden(w, r, "Invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
