// Package token issues and verifies the signed identity tokens handed out
// after a completed authentication, using configured signing keys and strict
// validation semantics.
package token
