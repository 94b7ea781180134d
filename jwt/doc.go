// Package jwt signs and verifies the access and refresh tokens issued by
// authcore. Both token kinds carry {uid, email} plus registered claims and a
// "use" discriminator so one kind can never stand in for the other.
package jwt
