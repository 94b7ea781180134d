// Package audit provides the asynchronous audit event pipeline used by the
// Engine: an Event model, Sink implementations, and a buffered Dispatcher
// that never blocks a flow when configured to drop on overflow.
package audit
