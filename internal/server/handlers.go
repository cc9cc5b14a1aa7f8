package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fundquest/auth-portal/internal/backend"
	errs "github.com/fundquest/auth-portal/internal/errors"
	"github.com/fundquest/auth-portal/internal/msauth"
	"github.com/fundquest/auth-portal/internal/session"
)

const (
	// stateCookie carries the per-attempt OAuth state between the
	// sign-in page and the callback.
	stateCookie = "oauth_state"

	// stateCookieMaxAge bounds how long a sign-in attempt stays valid.
	stateCookieMaxAge = 5 * time.Minute
)

type handlers struct {
	auth            *msauth.Builder
	backend         *backend.Client
	store           *session.Store
	gate            *session.Gate
	logger          *slog.Logger
	redirectSeconds int
}

// handleLogin serves the sign-in page. It is also the catch-all: any
// unknown path lands here and is sent to the root first. An already
// authenticated visitor is sent straight to the dashboard.
func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if d := h.gate.Allow(session.RouteLogin); !d.Proceed() {
		http.Redirect(w, r, d.RedirectTo, http.StatusFound)
		return
	}

	authURL, state := h.auth.AuthURL()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-store")
	_ = loginPage.Execute(w, loginData{SignInURL: authURL})
}

// handleCallback lands the browser after Microsoft. Provider denials
// and malformed callbacks render the error page; a code is redeemed
// with the backend and the browser continues to the dashboard.
func (h *handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	cb := msauth.ParseCallback(r.URL)

	if cb.Denied() {
		h.logger.Warn("sign-in denied by provider",
			slog.String("error", cb.Error),
			slog.String("description", cb.ErrorDescription),
		)

		msg := cb.ErrorDescription
		if msg == "" {
			msg = cb.Error
		}

		h.renderSignInError(w, "Sign-in failed: "+msg)

		return
	}

	if cb.Code == "" {
		h.logger.Warn("callback carried no authorization code")
		h.renderSignInError(w, "Microsoft did not return an authorization code. Please try signing in again.")

		return
	}

	// The state cookie binds the callback to a sign-in attempt started
	// here. A missing cookie is tolerated (it may have expired while
	// the consent screen was open); a mismatch is not.
	if c, err := r.Cookie(stateCookie); err == nil && cb.State != c.Value {
		h.logger.Warn("callback state mismatch")
		h.renderSignInError(w, "Sign-in attempt could not be verified. Please try again.")

		return
	}

	clearStateCookie(w)

	if _, err := h.backend.Exchange(r.Context(), cb.Code); err != nil {
		h.logger.Error("code exchange failed", slog.Any("error", err))
		h.renderSignInError(w, "Sign-in failed: "+err.Error())

		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// handleDashboard shows the signed-in user's profile. A session the
// backend no longer accepts sends the browser back to sign-in.
func (h *handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if d := h.gate.Allow(session.RouteProtected); !d.Proceed() {
		http.Redirect(w, r, d.RedirectTo, http.StatusFound)
		return
	}

	profile, err := h.backend.GetProfile(r.Context())
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		h.logger.Error("profile fetch failed", slog.Any("error", err))

		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_ = errorPage.Execute(w, errorData{
			Title:       "Dashboard unavailable",
			Message:     "Could not load your profile: " + err.Error(),
			Target:      "/dashboard",
			TargetLabel: "Try again",
		})

		return
	}

	data := dashboardData{
		Profile: profileView{
			Name:       profile.Name,
			Email:      profile.Email,
			JobTitle:   profile.JobTitle,
			Department: profile.Department,
			LastLogin:  profile.LastLogin,
		},
	}

	if sess, err := h.store.Load(); err == nil && sess != nil && sess.ExpiresIn > 0 {
		data.ExpiresAt = sess.ExpiresAt().Local().Format(time.RFC1123)
	}

	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-store")
	_ = dashboardPage.Execute(w, data)
}

// handleLogout ends the session. The backend call is best-effort; local
// state is cleared regardless so sign-out always succeeds for the user.
func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Logout(r.Context()); err != nil {
		h.logger.Warn("backend logout failed", slog.Any("error", err))
	}

	if err := h.store.Clear(); err != nil {
		h.logger.Error("clearing session failed", slog.Any("error", err))
	}

	clearStateCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// renderSignInError shows the error page with a countdown back to the
// sign-in screen.
func (h *handlers) renderSignInError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusBadRequest)
	_ = errorPage.Execute(w, errorData{
		Title:       "Authentication error",
		Message:     message,
		Seconds:     h.redirectSeconds,
		Target:      "/",
		TargetLabel: "Back to sign-in",
	})
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
