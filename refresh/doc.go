// Package refresh generates opaque refresh-token values and their storage
// digests.
//
// # Token format
//
// A raw token is 32 bytes from crypto/rand, base64url encoded without padding
// (43 characters). Only the lowercase hex SHA-256 of the encoded string is ever
// persisted, so a store dump cannot be replayed.
//
// # What this package must NOT do
//
//   - Access Redis or any I/O.
//   - Implement rotation or replay logic (see the session store and the engine).
package refresh
