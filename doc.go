// Package authcore authenticates accounts by password, issues short-lived
// signed access tokens with rotating opaque refresh tokens, and answers
// role-hierarchy questions.
//
// Engine methods are safe to call from multiple goroutines once built through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface: [Engine], [Builder], [Config] and the value
// and store types. Flow orchestration, rate limiting and audit dispatch live
// under internal/. Hashing, token signing, refresh records and the role
// hierarchy are separate packages (password, jwt, session, permission).
// Persistence adapters (sqlstore) and HTTP surfaces (middleware, httpapi)
// import authcore; authcore never imports them.
//
// # Refresh rotation
//
// A refresh token is single use. Rotation flips the stored record from
// ACTIVE to CONSUMED with a compare-and-set, so exactly one of any number of
// concurrent presenters wins. Presenting a token that is no longer ACTIVE is
// treated as theft: every active token of the account is revoked and
// [ErrTokenReuseDetected] is returned.
//
// # Errors
//
// Operations return *[Error] values that unwrap to the package sentinels, so
// callers test them with errors.Is. Rate-limited calls additionally carry a
// *[RateLimitError] with the lock expiry. Errors never contain passwords or
// token values.
package authcore
