// Package server hosts the StreamTube HTTP API.
//
// The server builds a consistent middleware chain of request IDs, logging,
// audit, metrics, security headers, CORS, rate limiting, and auth so handlers
// all share common protections and instrumentation.
package server
