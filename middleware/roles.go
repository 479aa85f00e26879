package middleware

import "net/http"

// RequireRoles lets the request through when the authenticated user holds
// at least one of roles. It must run after [RequireSession]; without an
// Auth in the context the request gets 401.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	required := append([]string(nil), roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if !auth.User.HasAnyRole(required...) {
				WriteError(w, http.StatusForbidden, "Forbidden resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
