// Package jwt issues and verifies short-lived access tokens.
//
// Tokens carry sub, email, role, jti, iat, exp and optionally iss/aud. HS256
// is the default algorithm; Ed25519 is available for deployments that verify
// tokens in other services. Parsing pins the configured algorithm, so a token
// signed with any other method is rejected before key lookup.
package jwt
