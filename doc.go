// Package eident provides a transport-agnostic order-lifecycle engine for a
// national eID-style identity provider: it initiates remotely-verified
// authentication orders, supervises them with per-attempt timers, renews
// them before the remote party times them out, and consumes each order
// exactly once to authenticate a principal.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. Every in-flight authentication attempt gets its own
// scheduler goroutine; the only shared mutable state between attempts is
// the Redis-backed order store, which is accessed exclusively through
// narrow compare-and-set operations that tolerate zero rows affected.
//
// # Architecture boundaries
//
// eident is the public surface. It exposes [Engine], [Builder], [Config],
// the four boundary operations (Initiate, Poll, Renew, Complete) and their
// sanitized result types. Order persistence lives in the order subpackage,
// the relying-party HTTP client in remote, and the default JWT token issuer
// in token.
//
// # What this package must NOT do
//
//   - Return qrStartSecret or the session binding value in any response,
//     audit event, or metric.
//   - Let a session-mismatch be distinguishable, in error value or timing,
//     from an unknown order reference.
//   - Delete orders synchronously: removal is the expunger's job alone.
package eident
