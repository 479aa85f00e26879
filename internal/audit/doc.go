// Package audit implements async event dispatching for sign-in and session
// operations.
//
// # Components
//
//   - [Sink]: event consumer. [ZapSink] and [JSONLinesSink] are the production
//     sinks; [ChannelSink] serves tests.
//   - [Dispatcher]: buffered relay that either drops or waits when full.
//   - [Event]: one sign-in, session or logout outcome.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authgate or any sibling internal package.
package audit
