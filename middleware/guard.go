package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/authgate"
	"go.uber.org/zap"
)

type sessionOptions struct {
	disableAutoExtend bool
}

// SessionOption tunes [RequireSession] for one route.
type SessionOption func(*sessionOptions)

// WithoutAutoExtend validates the session without sliding its expiry.
func WithoutAutoExtend() SessionOption {
	return func(o *sessionOptions) {
		o.disableAutoExtend = true
	}
}

// RequireSession authenticates the request from its session cookie and
// attaches an [Auth] to the context.
//
// Missing or dead sessions get 401 and, when a cookie was sent, a cleared
// cookie. Session store failures get 503. When validation slid the expiry
// forward the cookie is re-issued with the new Expires.
func RequireSession(engine *authgate.Engine, opts ...SessionOption) func(http.Handler) http.Handler {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			cookie, err := r.Cookie(authgate.SessionCookieName)
			if err != nil || cookie.Value == "" {
				engine.RecordMetric(authgate.MetricUnauthorized)
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			sess, extended, err := engine.ValidateSession(r.Context(), cookie.Value, o.disableAutoExtend)
			switch {
			case errors.Is(err, authgate.ErrUnauthorized):
				http.SetCookie(w, engine.ClearSessionCookie())
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			case err != nil:
				engine.Logger().Warn("session guard unavailable", zap.String("path", r.URL.Path), zap.Error(err))
				WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
				return
			}

			if extended {
				http.SetCookie(w, engine.SessionCookie(cookie.Value, sess))
			}

			ctx := WithAuth(r.Context(), &Auth{
				User:      sess.User(),
				SessionID: sess.ID,
				Session:   sess,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
