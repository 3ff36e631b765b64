// Package session persists refresh-token records and enforces their
// single-use state machine.
//
// # Lifecycle
//
// A record is created ACTIVE. Rotation moves it to CONSUMED through
// [Store.CompareAndSetStatus]; logout, demotion and reuse detection move every
// ACTIVE record of an account to REVOKED. CONSUMED and REVOKED are terminal.
// Terminal records are kept until their expiry so a replayed token is still
// recognised as reuse rather than as an unknown value.
//
// # Redis layout
//
//	<prefix>rt:<id>         hash: one record (fields in [Encode])
//	<prefix>rth:<tokenHash> string: record id
//	<prefix>rta:<accountID> set: record ids of the account
//
// All keys expire at the record's ExpiresAt.
//
// # What this package must NOT do
//
//   - See raw token values. Only digests cross this boundary.
//   - Decide whether a presented token is reuse. That is the caller's policy.
package session
