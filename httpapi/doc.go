// Package httpapi serves the authentication engine over JSON/HTTP with
// gorilla/mux.
//
// Routes:
//
//	GET  /healthz
//	POST /auth/register
//	POST /auth/login
//	POST /auth/refresh
//	POST /auth/logout             (bearer)
//	GET  /auth/me                 (bearer)
//	PUT  /admin/accounts/{id}/role (bearer)
//
// Engine errors map to status codes in one place, see statusFor. Rate limits
// answer 429 with Retry-After and backend outages answer 503.
package httpapi
