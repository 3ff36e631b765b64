// Package middleware adapts authcore.Engine to net/http.
//
//   - [Origin] records the caller's IP and user agent for throttling and audit.
//   - [Guard] verifies the bearer access token and stores the claims.
//   - [RequireRole] and [RequirePermission] authorize guarded requests.
//   - [RateLimit] applies the engine's api throttle class.
//
// The package only translates HTTP into Engine calls. It never parses tokens
// or touches a store itself.
package middleware
