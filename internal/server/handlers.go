package server

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/origin"
	"github.com/MrEthical07/authgate/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// sessionView is the JSON shape of a session. Timestamps are Unix
// milliseconds.
type sessionView struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Current   bool   `json:"current,omitempty"`
}

func viewOf(s *session.Session) sessionView {
	return sessionView{
		ID:        s.ID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mustAuth returns the request's Auth. Routes using it sit behind
// RequireSession.
func mustAuth(w http.ResponseWriter, r *http.Request) (*middleware.Auth, bool) {
	auth, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return auth, ok
}

// logout ends the caller's session. With redirect=true it sends the browser
// back to the Referer, or failing that the Origin, when that page belongs
// to a registered origin.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	if err := h.engine.InvalidateSession(r.Context(), auth.Session); err != nil {
		h.logger.Warn("logout failed", zap.String("user_id", auth.User.ID), zap.Error(err))
		middleware.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}
	http.SetCookie(w, h.engine.ClearSessionCookie())

	if r.URL.Query().Get("redirect") == "true" {
		if target, ok := h.logoutTarget(r); ok {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) logoutTarget(r *http.Request) (string, bool) {
	for _, candidate := range []string{r.Header.Get("Referer"), r.Header.Get("Origin")} {
		if candidate == "" {
			continue
		}
		o, err := origin.Normalize(candidate)
		if err != nil || !h.engine.Origins().Validate(o) {
			continue
		}
		return candidate, true
	}
	return "", false
}

func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, auth.User)
}

// session reports the caller's session without renewing it.
func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(auth.Session))
}

func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	list, err := h.engine.ListSessions(r.Context(), auth.User.ID)
	if err != nil {
		h.logger.Warn("list sessions failed", zap.String("user_id", auth.User.ID), zap.Error(err))
		middleware.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}

	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		v := viewOf(s)
		v.Current = s.ID == auth.SessionID
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// revokeAll signs the caller out everywhere, including this browser.
func (h *handlers) revokeAll(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	if _, err := h.engine.InvalidateAllSessions(r.Context(), auth.User.ID); err != nil {
		h.logger.Warn("revoke all failed", zap.String("user_id", auth.User.ID), zap.Error(err))
		middleware.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}
	http.SetCookie(w, h.engine.ClearSessionCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) revokeUser(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	target := chi.URLParam(r, "userID")
	n, err := h.engine.InvalidateAllSessions(r.Context(), target)
	if err != nil {
		h.logger.Warn("admin revoke failed", zap.String("target_user_id", target), zap.Error(err))
		middleware.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}
	h.logger.Info("admin revoked sessions",
		zap.String("admin_user_id", auth.User.ID),
		zap.String("target_user_id", target),
		zap.Int("count", n),
	)
	if target == auth.User.ID {
		http.SetCookie(w, h.engine.ClearSessionCookie())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		middleware.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
