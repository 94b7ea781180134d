// Package postgres provides PostgreSQL-backed implementations of the
// authcore repository interfaces, connected through the pgx stdlib driver.
// Lookups return (nil, nil) for missing rows; errors are reserved for
// database failures.
package postgres
