// Package audit implements async event dispatching for security-relevant
// session operations.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured audit record with timestamp, type, user, session, IP, metadata.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic; the engine
//     decides what to emit.
//   - Import castellan or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
