package middleware

import (
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/origin"
)

// RequireOrigin rejects state-changing requests whose Origin header is not
// registered. GET, HEAD and OPTIONS always pass.
func RequireOrigin(engine *authgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			o, err := origin.Normalize(r.Header.Get("Origin"))
			if err != nil || engine == nil || !engine.Origins().Validate(o) {
				if engine != nil {
					engine.RecordMetric(authgate.MetricOriginRejected)
				}
				WriteError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
