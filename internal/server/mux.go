// Package server provides HTTP server construction for the auth portal.
package server

import (
	"log/slog"
	"net/http"

	"github.com/fundquest/auth-portal/internal/backend"
	"github.com/fundquest/auth-portal/internal/msauth"
	"github.com/fundquest/auth-portal/internal/session"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Auth    *msauth.Builder
	Backend *backend.Client
	Store   *session.Store
	Gate    *session.Gate
	Logger  *slog.Logger

	// RedirectSeconds is the countdown on error pages before the
	// browser is sent back to the sign-in screen.
	RedirectSeconds int
}

// NewMux builds the portal routes: sign-in page, OAuth callback,
// dashboard, logout, and a health probe. Unknown paths fall through to
// the root handler, which sends them to the sign-in page.
func NewMux(cfg MuxConfig) http.Handler {
	h := &handlers{
		auth:            cfg.Auth,
		backend:         cfg.Backend,
		store:           cfg.Store,
		gate:            cfg.Gate,
		logger:          cfg.Logger,
		redirectSeconds: cfg.RedirectSeconds,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", h.handleLogin)
	mux.HandleFunc("GET /auth/callbacks", h.handleCallback)
	mux.HandleFunc("GET /dashboard", h.handleDashboard)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	return withRequestLogging(mux, cfg.Logger)
}
