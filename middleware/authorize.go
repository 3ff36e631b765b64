package middleware

import (
	"net/http"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

// RequireRole admits guarded requests whose role ranks at or above role.
// It must run after Guard.
func RequireRole(engine *authcore.Engine, role string) func(http.Handler) http.Handler {
	return require(func(c *authcore.Claims) bool {
		return engine.Satisfies(c.Role, role)
	})
}

// RequirePermission admits guarded requests whose role grants perm.
func RequirePermission(engine *authcore.Engine, perm string) func(http.Handler) http.Handler {
	return require(func(c *authcore.Claims) bool {
		return engine.HasPermission(c.Role, perm)
	})
}

func require(allowed func(*authcore.Claims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !allowed(claims) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
