// Package authcore is the authentication, session, and token lifecycle core
// of the skydrive storage backend.
//
// It implements the two-step login state machine (password check, then TOTP
// challenge), issuance and rotation of JWT access/refresh token pairs, device
// trust and verification, session revocation cascades, password history
// enforcement, and refresh-token blacklisting on logout.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the repository contracts ([UserRepository], [SessionRepository],
// [DeviceRepository], [PasswordHistoryRepository]), and value types. Flow
// staging, token entropy, and the ephemeral stores live under internal/ and
// are never exported.
//
// The pending-login store and the token blacklist are process-local by
// default: a mutex-guarded map with TTL expiry. That is a deliberate
// scalability boundary — a single stateless instance works out of the box,
// while horizontal scaling requires externalizing both stores to Redis via
// [Builder.WithRedis]. The durable repositories (users, sessions, devices,
// password history) are the unit of cross-instance truth.
//
// # What this package must NOT do
//
//   - Leak HTTP concepts: inputs and outputs are plain records; status-code
//     mapping belongs to the boundary layer.
//   - Distinguish "no such user" from "wrong password" to a caller. Both are
//     [ErrInvalidCredentials], always with the same message.
//   - Rate-limit or throttle. Brute-force protection is a separate layer.
package authcore
