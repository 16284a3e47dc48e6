package middleware

import (
	"net/http"

	"github.com/MrEthical07/shieldauth"
)

// RequireRole must run after Guard.
func RequireRole(role shieldauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			if res.Role != role {
				writeError(w, http.StatusForbidden, "forbidden", "You don't have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
