package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/terra-clan/memgame/internal/auth"
	"github.com/terra-clan/memgame/internal/models"
)

// loginForm describes the login screen to the client
type loginForm struct {
	Fields      []string `json:"fields"`
	Next        string   `json:"next"`
	RegisterURL string   `json:"register_url"`
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, loginForm{
		Fields:      []string{"username", "password"},
		Next:        safeNext(r.URL.Query().Get("next")),
		RegisterURL: registerPath,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	err := decodeRequest(w, r, &req, func(get func(string) string) {
		req.Username = get("username")
		req.Password = get("password")
		req.Next = get("next")
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Next == "" {
		req.Next = r.URL.Query().Get("next")
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}

	player, err := s.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Warn("failed login attempt", "username", req.Username, "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "please enter a correct username and password")
			return
		}
		slog.Error("failed to authenticate", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	s.startLogin(w, r, player, safeNext(req.Next))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	err := decodeRequest(w, r, &req, func(get func(string) string) {
		req.Username = get("username")
		req.Password1 = get("password1")
		req.Password2 = get("password2")
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	player, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, "validation_error", verr.Error())
		case errors.Is(err, auth.ErrUsernameTaken):
			respondError(w, http.StatusConflict, "username_taken", err.Error())
		default:
			slog.Error("failed to register player", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to register")
		}
		return
	}

	s.startLogin(w, r, player, selectLevelPath)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := s.authMiddleware.extractToken(r); token != "" {
		if err := s.accounts.Logout(r.Context(), token); err != nil {
			slog.Error("failed to revoke token", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to log out")
			return
		}
	}

	clearSessionCookie(w, s.authConfig)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (s *Server) startLogin(w http.ResponseWriter, r *http.Request, player *models.Player, next string) {
	session, err := s.accounts.IssueToken(player)
	if err != nil {
		slog.Error("failed to issue token", "error", err, "player_id", player.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	setSessionCookie(w, s.authConfig, session)
	http.Redirect(w, r, next, http.StatusSeeOther)
}
