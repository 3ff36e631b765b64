// Package password hashes and verifies account passwords.
//
// # Record format
//
// New records are argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory KiB>,t=<iterations>,p=<threads>$<salt>$<key>
//
// Salt and key are standard base64. Every parameter needed for verification
// lives in the record, so raising the configured cost never invalidates an
// existing hash. [Hasher.NeedsRehash] reports records that should be replaced
// on the next successful login.
//
// Legacy bcrypt records ($2a$, $2b$, $2y$) verify when [Config.AcceptBcrypt]
// is set and always report NeedsRehash.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Enforce password composition policy (the engine validates input).
//   - Import any other package of this module.
package password
