// Package internal contains helper utilities private to authcore: secure
// token generation and hashing.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - stores — pending-login staging and refresh-token blacklist, each with
//     an in-process and a Redis-backed implementation
//
// Nothing under internal/ may appear in the public authcore API.
package internal
