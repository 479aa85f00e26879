package authgate

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authgate/session"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

// SessionCookie returns the cookie that hands token to the browser. It
// expires together with sess.
func (e *Engine) SessionCookie(token string, sess *session.Session) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresTime(),
		HttpOnly: true,
		Secure:   e.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie returns a cookie that makes the browser drop the
// session.
func (e *Engine) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   e.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
