package authcore

import "context"

// RevokeAllSessions revokes every session belonging to the user, verified
// devices included. Use after a credential compromise; the devices themselves
// stay trusted.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.RevokeAllUserSessions(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"scope": "all",
		}
	})
	return nil
}

// SweepExpiredSessions deletes session rows past their expiry and reports how
// many were removed. Meant to run from a periodic job, not a request path.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int64, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.DeleteExpiredSessions(ctx)
}
