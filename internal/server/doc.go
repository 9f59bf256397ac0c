// Package server hosts the ClipHive HTTP API behind one multiplexer.
//
// The server builds a consistent middleware chain of request IDs, logging,
// audit, metrics, security headers, CORS, rate limiting, and auth so handlers
// all share common protections and instrumentation.
package server
