package authcore

import (
	"context"
	"time"

	"github.com/skydrive-labs/authcore/internal"
	"github.com/skydrive-labs/authcore/jwt"
)

// Logout invalidates a refresh token ahead of its natural expiry. It never
// fails and never reports whether the token was valid: revealing either would
// let a caller probe token state. Calling it twice with the same token is a
// harmless repeat.
//
// If the token verifies, the matching persisted session is revoked. The raw
// token is blacklisted regardless, with an expiry taken from the token's own
// exp claim when readable and a conservative fallback window otherwise.
func (e *Engine) Logout(ctx context.Context, refreshToken string) {
	if e == nil || e.blacklist == nil || e.jwtManager == nil || refreshToken == "" {
		return
	}

	var (
		userID    string
		sessionID string
		expiresAt time.Time
	)

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err == nil {
		userID = claims.UID
		expiresAt = claims.ExpiresAt.Time
		sessionID = e.revokeSessionByToken(ctx, refreshToken, userID)
	} else {
		// Unverifiable token: the unverified exp is good enough for blacklist
		// bookkeeping since nothing trusts the entry beyond its window.
		if exp, derr := jwt.DecodeExpiryUnverified(refreshToken); derr == nil {
			expiresAt = exp
		} else {
			expiresAt = time.Now().Add(e.config.Blacklist.FallbackTTL)
		}
	}

	if err := e.blacklist.Add(ctx, refreshToken, expiresAt); err != nil {
		e.warn("blacklist add on logout failed: %v", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, sessionID, nil, nil)
}

func (e *Engine) revokeSessionByToken(ctx context.Context, refreshToken, userID string) string {
	if e.sessions == nil {
		return ""
	}

	sess, err := e.sessions.FindByRefreshTokenHash(ctx, internal.HashToken(refreshToken))
	if err != nil {
		e.warn("session lookup on logout failed for user %s: %v", userID, err)
		return ""
	}
	if sess == nil || sess.RevokedAt != nil {
		return ""
	}

	if err := e.sessions.RevokeSession(ctx, sess.ID); err != nil {
		e.warn("session revoke on logout failed for session %s: %v", sess.ID, err)
		return sess.ID
	}
	e.metricInc(MetricSessionRevoked)
	return sess.ID
}
