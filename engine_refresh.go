package authcore

import (
	"context"
	"time"

	"github.com/skydrive-labs/authcore/internal"
)

// Refresh exchanges a valid, non-blacklisted refresh token for a new token
// pair. Claims are always re-derived from the current user record, never
// copied from the presented token, so an email change propagates on the next
// rotation.
//
// The presented token is only invalidated when Config.Refresh.BlacklistOnRotate
// is set. With it off, an old-but-unexpired refresh token stays usable until
// its natural expiry.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.users == nil || e.jwtManager == nil || e.blacklist == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	blacklisted, err := e.blacklist.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrBlacklistUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "blacklist_check_failed",
			}
		})
		return nil, ErrBlacklistUnavailable
	}
	if blacklisted {
		e.metricInc(MetricRefreshBlacklisted)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "blacklisted",
			}
		})
		return nil, ErrInvalidCredentials
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "token_verify_failed",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.FindByID(ctx, claims.UID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, "", err, nil)
		return nil, err
	}
	if user == nil {
		// Deleted account holding a still-valid token.
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "user_gone",
			}
		})
		return nil, ErrInvalidCredentials
	}
	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	access, err := e.jwtManager.CreateAccess(user.ID, user.Email)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, "", err, nil)
		return nil, err
	}
	newRefresh, err := e.jwtManager.CreateRefresh(user.ID, user.Email)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, "", err, nil)
		return nil, err
	}

	if e.config.Refresh.BlacklistOnRotate {
		if err := e.blacklist.Add(ctx, refreshToken, claims.ExpiresAt.Time); err != nil {
			e.warn("blacklist-on-rotate failed for user %s: %v", user.ID, err)
		}
	}

	sessionID := e.touchSession(ctx, refreshToken, newRefresh, user.ID)

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, sessionID, nil, nil)

	return &TokenPair{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresIn:    int(e.config.JWT.AccessTTL.Seconds()),
	}, nil
}

// touchSession moves the persisted session forward to the rotated refresh
// token and bumps its activity timestamp. Best-effort: the rotation already
// succeeded and a storage hiccup here must not undo it.
func (e *Engine) touchSession(ctx context.Context, oldToken, newToken, userID string) string {
	if !e.config.Refresh.TouchSessionActivity || e.sessions == nil {
		return ""
	}

	sess, err := e.sessions.FindByRefreshTokenHash(ctx, internal.HashToken(oldToken))
	if err != nil {
		e.warn("session lookup on refresh failed for user %s: %v", userID, err)
		return ""
	}
	if sess == nil || !sess.Active(time.Now()) {
		return ""
	}

	now := time.Now()
	sess.RefreshTokenHash = internal.HashToken(newToken)
	sess.LastActivityAt = now
	sess.ExpiresAt = now.Add(e.config.JWT.RefreshTTL)
	if err := e.sessions.Save(ctx, sess); err != nil {
		e.warn("session touch on refresh failed for session %s: %v", sess.ID, err)
		return sess.ID
	}
	return sess.ID
}
