package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/memgame/internal/auth"
	"github.com/terra-clan/memgame/internal/catalog"
	"github.com/terra-clan/memgame/internal/config"
	"github.com/terra-clan/memgame/internal/game"
	"github.com/terra-clan/memgame/internal/health"
	"github.com/terra-clan/memgame/internal/profile"
)

const (
	loginPath       = "/"
	registerPath    = "/register"
	selectLevelPath = "/select-level"
	profilePath     = game.ProfilePath
	logoutPath      = "/logout"
	movePath        = "/game/move"
)

// Server represents the HTTP server
type Server struct {
	config         config.ServerConfig
	authConfig     config.AuthConfig
	router         *chi.Mux
	games          game.Manager
	catalog        *catalog.Catalog
	profiles       *profile.Aggregator
	accounts       *auth.Service
	health         *health.Registry
	authMiddleware *AuthMiddleware
	upgrader       *websocket.Upgrader
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	authCfg config.AuthConfig,
	games game.Manager,
	cat *catalog.Catalog,
	profiles *profile.Aggregator,
	accounts *auth.Service,
	registry *health.Registry,
) *Server {
	s := &Server{
		config:         cfg,
		authConfig:     authCfg,
		games:          games,
		catalog:        cat,
		profiles:       profiles,
		accounts:       accounts,
		health:         registry,
		authMiddleware: NewAuthMiddleware(accounts, authCfg),
		upgrader:       newUpgrader(cfg.CORSAllowedOrigins),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := s.config.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Must be set before any route so every node inherits them
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	// Health checks (public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// Accounts (public)
	r.Get(loginPath, s.handleLoginForm)
	r.Post(loginPath, s.handleLogin)
	r.Post(registerPath, s.handleRegister)

	// Everything else needs a logged in player
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware.RequirePlayer)

		r.Post(logoutPath, s.handleLogout)
		r.Get(selectLevelPath, s.handleSelectLevel)
		r.Get(profilePath, s.handleProfile)

		r.Post(movePath, s.handleMove)
		r.Post("/game/end/{sessionID}", s.handleEndGame)
		r.Get("/game/ws/{sessionID}", s.handleMovesWS)
		r.Get("/game/{level}", s.handleStartGame)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
