// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRegister, RunLogin, RunRefresh, ...) accepts a typed
// dependency struct and returns a result carrying a failure kind. The engine
// maps failure kinds to its public errors, audit events and metrics, so flows
// never see those types.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (import cycle).
//   - Perform I/O directly. All I/O goes through dependency functions and interfaces.
package flows
