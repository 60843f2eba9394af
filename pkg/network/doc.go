// Package network owns the physical link to the messaging service.
//
// A Conn manages one TLS stream: it frames outbound messages, runs the
// inbound read loop, sends periodic heartbeats, and drives the
// reconnection state machine
//
//	Disconnected -> Connecting -> Connected -> Reconnecting -> Connecting -> ...
//
// with exponential backoff between attempts. The terminal Closed state is
// reached only through Close.
//
// Transport and framing failures are handled locally and surfaced as
// events on a single ordered channel, never as errors that unwind caller
// code. Concurrent Send calls are safe: physical writes are serialized so
// frame bytes never interleave on the wire.
package network
