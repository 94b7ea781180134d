// Package internaldefs exposes the stable metric name and bucket definitions
// shared by exporter implementations.
//
// Counter and histogram definitions live here so the Prometheus and OTel
// exporters always agree on metric names and bucket boundaries.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
