package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/readshelf/readshelf/internal/config"
	"github.com/readshelf/readshelf/internal/logger"
	"github.com/readshelf/readshelf/internal/service"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "sessionToken"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	auth   service.AuthService
	reset  service.PasswordResetService
	health Pinger
	cfg    *config.Config
}

func New(auth service.AuthService, reset service.PasswordResetService, health Pinger, cfg *config.Config) *Handler {
	return &Handler{auth: auth, reset: reset, health: health, cfg: cfg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", "error", err)
	}
}

// sessionToken returns the token from the session cookie, or "" if absent.
func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     SessionCookie,
		Value:    token,
		MaxAge:   int(h.cfg.Public.TokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     SessionCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
