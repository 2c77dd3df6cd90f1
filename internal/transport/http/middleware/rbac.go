package middleware

import (
	"net/http"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/transport/http/api"
)

// RequirePermission admits callers whose role grants any of the permissions.
func RequirePermission(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
				return
			}

			for _, permission := range permissions {
				if auth.HasPermission(user.RoleName, permission) {
					next.ServeHTTP(w, r)
					return
				}
			}
			api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", GetRequestID(r.Context()))
		})
	}
}
