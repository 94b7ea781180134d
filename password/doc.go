// Package password hashes and verifies user passwords with argon2id.
//
// Hashes are stored in PHC string format with their cost parameters embedded,
// so parameters can be raised over time without invalidating existing hashes;
// NeedsUpgrade reports when a stored hash was produced with weaker parameters
// than the active configuration.
package password
