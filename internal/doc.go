// Package internal contains helper utilities that are intentionally private
// to eident: secure random generation for session binding tokens and the
// fixed-width hashing used for timing-safe comparisons.
//
// # What this package must NOT do
//
//   - Export types that appear in the public eident API.
//   - Be imported by any package outside the eident module.
package internal
