// Package remote implements the HTTP relying-party client for the national
// eID provider's order API, authenticated with a TLS client certificate.
//
// A process-wide default client is available through Default for callers
// that configure one client per process; tests and multi-tenant setups
// construct their own with NewClient.
package remote
