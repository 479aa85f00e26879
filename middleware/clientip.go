package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/authgate"
)

// ClientIP attaches the caller's address to the request context for rate
// limiting and audit events. Put chi's RealIP in front of it when running
// behind a trusted proxy.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(authgate.WithClientIP(r.Context(), RemoteIP(r))))
	})
}

// RemoteIP returns the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
