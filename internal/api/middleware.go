package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/terra-clan/memgame/internal/auth"
	"github.com/terra-clan/memgame/internal/config"
)

// AuthMiddleware resolves the login token of a request
type AuthMiddleware struct {
	accounts *auth.Service
	cookie   config.AuthConfig
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(accounts *auth.Service, cookie config.AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{accounts: accounts, cookie: cookie}
}

// RequirePlayer rejects requests without a valid login. Page requests are
// redirected to the login form, everything else gets 401.
// Supports the session cookie or "Authorization: Bearer <token>".
func (m *AuthMiddleware) RequirePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractToken(r)
		if token == "" {
			m.reject(w, r)
			return
		}

		player, err := m.accounts.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				slog.Debug("rejected login token", "error", err, "remote_addr", r.RemoteAddr)
				clearSessionCookie(w, m.cookie)
				m.reject(w, r)
				return
			}
			slog.Error("failed to verify login token", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithPlayer(r.Context(), player)))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		http.Redirect(w, r, "/?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}
	respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
}

// extractToken reads the session cookie first, then the Authorization header
func (m *AuthMiddleware) extractToken(r *http.Request) string {
	if c, err := r.Cookie(m.cookie.CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

func setSessionCookie(w http.ResponseWriter, cfg config.AuthConfig, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, cfg config.AuthConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeNext only follows local absolute paths
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return selectLevelPath
	}
	return next
}
