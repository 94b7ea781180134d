package authcore

import (
	"io"

	"github.com/skydrive-labs/authcore/internal/audit"
)

// AuditEvent is the record handed to audit sinks. Emission is asynchronous;
// sinks observe events in dispatch order, not necessarily completion order
// of the flows that produced them.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher. Emit must be
// safe for concurrent use and should not block for long; slow sinks back up
// the dispatcher buffer.
type AuditSink = audit.Sink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events on a channel for test and pipeline consumers.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink = audit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func newEngineAudit(cfg AuditConfig, sink AuditSink) *audit.Dispatcher {
	return audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}
