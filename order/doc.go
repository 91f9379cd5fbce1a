// Package order holds the persistent representation of an authentication
// order: the record model, its versioned binary codec, and the Redis-backed
// store with the compare-and-set update discipline the engine relies on for
// exactly-once consumption.
//
// # Architecture boundaries
//
//   - The store never interprets order semantics (expiry, renewal gating,
//     session binding). Those decisions belong to the engine; the store only
//     guarantees atomicity of individual record transitions.
//   - QRStartSecret and the session binding hash are persisted here but must
//     never be copied into any response type. Sanitization happens in the
//     root package.
package order
