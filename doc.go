// Package roll implements an asynchronous HTTP/1.1 server framework whose
// hard engineering sits in the connection-level protocol core: parsing
// incoming HTTP messages incrementally from a byte stream, dispatching
// them through a routing table and a pluggable hook pipeline, optionally
// upgrading the same connection to WebSocket, and writing responses that
// may be a finite byte buffer or an asynchronously produced chunked
// stream — all while supporting keep-alive, request-body streaming with
// backpressure, and clean partial-failure semantics.
//
// The process-level server launcher (socket binding, worker supervision),
// logging/CORS/static-file/session helper plugins, and the test-client
// harness are external collaborators; see the extensions and rolltest
// packages and cmd/rollserve for reference implementations of each.
package roll
