// Package mux owns the single-connection request/response multiplexer.
//
// Ownership boundary:
// - request table (dedup, pending, resolved responses)
// - connection manager (one live transport handle per channel)
// - dispatch cycle (one non-overlapping send/await/reconcile pass per tick)
//
// Pairing on the wire is positional: the peer answers requests in send order
// on the same connection, one exchange at a time. Concurrent in-flight
// requests would need a correlation field in the frame header.
package mux
