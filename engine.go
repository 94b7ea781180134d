package authcore

import (
	"log"

	"github.com/skydrive-labs/authcore/internal/audit"
	"github.com/skydrive-labs/authcore/internal/stores"
	"github.com/skydrive-labs/authcore/jwt"
	"github.com/skydrive-labs/authcore/password"
)

// Engine orchestrates the authentication flows over the repositories and
// stores wired in by the Builder. It holds no per-request state and is safe
// for concurrent use; Close releases the background sweepers and drains the
// audit dispatcher.
type Engine struct {
	config Config

	users    UserRepository
	sessions SessionRepository
	devices  DeviceRepository
	history  PasswordHistoryRepository

	pending   stores.PendingLoginStore
	blacklist stores.TokenBlacklist

	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	totp         *totpManager
	mailer       Mailer

	audit   *audit.Dispatcher
	metrics *Metrics

	warnf func(format string, args ...any)
}

// Close stops the store sweepers and flushes buffered audit events. The
// Engine must not be used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.pending != nil {
		e.pending.Close()
	}
	if e.blacklist != nil {
		e.blacklist.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// warn logs a non-fatal internal condition, such as a best-effort side effect
// failing. Never called for outcomes the caller already sees as an error.
func (e *Engine) warn(format string, args ...any) {
	if e == nil {
		return
	}
	if e.warnf != nil {
		e.warnf(format, args...)
		return
	}
	log.Printf("authcore: "+format, args...)
}
