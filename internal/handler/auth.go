package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/cloudhire/internal/auth"
	"github.com/pavelanni/cloudhire/internal/handler/views"
	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// csrfMiddleware implements double-submit cookies. Safe methods get a fresh
// token; other methods must echo the cookie in the csrf_token form field or
// the X-CSRF-Token header. The token rotates after every checked request.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			sent := r.Header.Get("X-CSRF-Token")
			if sent == "" {
				sent = r.FormValue("csrf_token")
			}
			if sent == "" {
				slog.Warn("CSRF form token missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(sent), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch", "path", r.URL.Path)
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		token, err := generateCSRFToken()
		if err != nil {
			serverError(w, "failed to generate CSRF token", err)
			return
		}
		// htmx autosaves reuse the token of the page they came from.
		if isHTMX(r) {
			if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
				token = c.Value
			}
		}
		h.setCSRFCookie(w, token)
		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirectToLogin(w, r)
			return
		}

		authSess, err := h.store.GetAuthSession(cookie.Value)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			h.redirectToLogin(w, r)
			return
		}
		if authSess == nil {
			h.redirectToLogin(w, r)
			return
		}

		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil || user == nil || !user.Active {
			h.redirectToLogin(w, r)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	loginPath := h.path("/login")
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) startSession(w http.ResponseWriter, userID int64) error {
	token, err := h.store.CreateAuthSession(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	return nil
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.LoginPage(""))
}

// handleLogin signs in administrators. Candidates have no password.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := h.store.GetUserByUsername(username)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		h.renderLoginError(w, r)
		return
	}
	if user == nil || !user.Active || user.PasswordHash == "" {
		h.renderLoginError(w, r)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		h.renderLoginError(w, r)
		return
	}

	if err := h.startSession(w, user.ID); err != nil {
		serverError(w, "failed to create auth session", err)
		return
	}
	slog.Info("user signed in", "user_id", user.ID, "role", user.Role)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "LoginError")))
}

// handleMagicLink exchanges a single-use invitation token for a candidate
// session.
func (h *Handler) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	email, err := h.issuer.Verify(r.URL.Query().Get("token"))
	if err != nil {
		msgID := "MagicLinkInvalid"
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			msgID = "MagicLinkExpired"
		case errors.Is(err, auth.ErrTokenUsed):
			msgID = "MagicLinkUsed"
		}
		slog.Warn("magic link rejected", "error", err)
		render(w, r, http.StatusUnauthorized, views.MessagePage("MagicLinkTitle", msgID))
		return
	}

	user, err := h.store.EnsureCandidate(email)
	if err != nil {
		serverError(w, "failed to load candidate user", err)
		return
	}
	if !user.Active {
		render(w, r, http.StatusForbidden, views.MessagePage("MagicLinkTitle", "AccountDisabled"))
		return
	}
	if user.Role != model.UserRoleCandidate {
		render(w, r, http.StatusForbidden, views.MessagePage("MagicLinkTitle", "MagicLinkInvalid"))
		return
	}
	if err := h.startSession(w, user.ID); err != nil {
		serverError(w, "failed to create auth session", err)
		return
	}
	slog.Info("candidate signed in with magic link", "user_id", user.ID)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}
