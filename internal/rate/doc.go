// Package rate implements fixed-window attempt counters with lockout.
//
// # Window semantics
//
// Each (class, subject) pair owns one counter key "<prefix>rl:<class>:<subject>".
// The first hit creates the key with the class window as TTL. Once the count
// passes the class threshold the attempt is denied, and the first denied
// attempt stretches the key TTL to the class lockout. Every attempt until the
// key expires is denied; after expiry counting restarts at 1.
//
// # What this package must NOT do
//
//   - Decide which subjects to key on (the caller chooses identity, IP or both).
//   - Be imported outside this module.
package rate
