package authcore

import (
	"context"
	"time"
)

// ValidateAccess verifies an access token and returns its identity claims.
// This is the per-request hot path: it touches no storage, only the token
// signature and expiry. Revocation granularity is therefore the access TTL;
// anything finer must go through the refresh path.
func (e *Engine) ValidateAccess(_ context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, ErrInvalidCredentials
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		UserID: claims.UID,
		Email:  claims.Email,
	}, nil
}
