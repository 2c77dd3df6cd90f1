package middleware

import (
	"context"
	"net/http"
	"strings"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/requestctx"
)

// Auth attaches the bearer token's user to the request context. Requests
// without a valid token pass through anonymously; RequirePermission rejects them.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				requestctx.Logger(r.Context()).Debug("bearer token rejected", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, auth.UserContext{
				UserID:   claims.UserID,
				RoleName: claims.RoleName,
			})
			ctx = requestctx.WithActorID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}

// WithUser is used by tests and internal callers that authenticate out of band.
func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return requestctx.WithActorID(context.WithValue(ctx, ctxKeyUser, user), user.UserID)
}
