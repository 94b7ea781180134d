// Package stores implements the two ephemeral stores of the authentication
// core: the pending-login staging area between password check and TOTP
// confirmation, and the refresh-token blacklist.
//
// Each store has two implementations with identical semantics: an in-process
// map guarded by a mutex (the default; single-instance only) and a
// Redis-backed variant for deployments that scale horizontally. Expiry is
// enforced on every read regardless of backend, so correctness never depends
// on a sweep firing.
package stores
