// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, no-op, or an external store).
//   - [Dispatcher]: bounded relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with severity and request origin.
//
// # What this package must NOT do
//
//   - Decide which events to emit. Callers own that.
//   - Let a slow or failing sink delay an authentication decision.
//   - Import the engine or any sibling internal package.
package audit
