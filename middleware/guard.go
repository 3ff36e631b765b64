package middleware

import (
	"context"
	"net/http"
	"strings"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return c, ok
}

// WithClaims stores c the way Guard does. Useful for handler tests.
func WithClaims(ctx context.Context, c *authcore.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// Guard rejects requests without a valid bearer access token. Verification is
// stateless, so a revoked session keeps its access token until expiry.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.VerifyAccessToken(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
