package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skydrive-labs/authcore/internal"
)

// RegisterDevice records a new trust entry for the caller's client, keyed by
// the device fingerprint riding on ctx. The first device a user registers
// becomes primary. The returned verification token is single-use and
// time-boxed; the device stays unverified until [Engine.VerifyDevice]
// consumes it.
//
// Re-registering a fingerprint that already has a live device returns the
// existing record with an empty token instead of creating a duplicate.
func (e *Engine) RegisterDevice(ctx context.Context, userID, name, deviceType string) (*DeviceInfo, string, error) {
	if e == nil || e.devices == nil {
		return nil, "", ErrEngineNotReady
	}

	fingerprint := deviceFingerprintFromContext(ctx)
	if fingerprint == "" {
		return nil, "", fmt.Errorf("%w: device fingerprint required", ErrValidation)
	}
	if name == "" {
		return nil, "", fmt.Errorf("%w: device name required", ErrValidation)
	}

	existing, err := e.devices.FindByFingerprint(ctx, userID, fingerprint)
	if err != nil {
		return nil, "", err
	}
	if existing != nil && existing.RevokedAt == nil {
		existing.LastUsedAt = time.Now()
		if err := e.devices.Save(ctx, existing); err != nil {
			e.warn("device last-used update failed for device %s: %v", existing.ID, err)
		}
		info := deviceInfo(existing)
		return &info, "", nil
	}

	primary, err := e.devices.FindPrimaryDevice(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	token, err := internal.NewVerificationToken()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	device := &Device{
		ID:                    uuid.NewString(),
		UserID:                userID,
		Fingerprint:           fingerprint,
		Name:                  name,
		Type:                  deviceType,
		IsPrimary:             primary == nil,
		VerificationToken:     token,
		VerificationExpiresAt: now.Add(e.config.Device.VerificationTTL),
		LastUsedAt:            now,
		CreatedAt:             now,
	}
	if err := e.devices.Save(ctx, device); err != nil {
		return nil, "", err
	}

	e.metricInc(MetricDeviceRegistered)
	e.emitAudit(ctx, auditEventDeviceRegistered, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"device_id":   device.ID,
			"device_type": deviceType,
		}
	})

	info := deviceInfo(device)
	return &info, token, nil
}

// VerifyDevice consumes a device verification token. Consuming clears the
// token and its expiry and marks the device verified; an unknown or expired
// token fails with ErrVerificationInvalid.
func (e *Engine) VerifyDevice(ctx context.Context, userID, token string) error {
	if e == nil || e.devices == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrVerificationInvalid
	}

	devices, err := e.devices.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}

	for i := range devices {
		device := &devices[i]
		if device.VerificationToken != token || device.RevokedAt != nil {
			continue
		}
		if time.Now().After(device.VerificationExpiresAt) {
			return ErrVerificationInvalid
		}

		device.IsVerified = true
		device.VerificationToken = ""
		device.VerificationExpiresAt = time.Time{}
		if err := e.devices.Save(ctx, device); err != nil {
			return err
		}

		e.metricInc(MetricDeviceVerified)
		e.emitAudit(ctx, auditEventDeviceVerified, true, userID, "", nil, func() map[string]string {
			return map[string]string{
				"device_id": device.ID,
			}
		})
		return nil
	}

	return ErrVerificationInvalid
}

// ListDevices returns the user's non-revoked devices in a display-safe shape.
// Fingerprints and verification tokens never leave the core.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]DeviceInfo, error) {
	if e == nil || e.devices == nil {
		return nil, ErrEngineNotReady
	}

	devices, err := e.devices.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceInfo, 0, len(devices))
	for i := range devices {
		if devices[i].RevokedAt != nil {
			continue
		}
		out = append(out, deviceInfo(&devices[i]))
	}
	return out, nil
}

// RevokeDevice revokes a device and every session bound to it. Revoking an
// already-revoked device is a no-op that reports success without re-running
// the cascade.
//
// When the device repository implements [CascadeRevoker] the whole cascade
// runs in one storage transaction. Otherwise sessions are revoked first and
// the device second, so a failure between the two leaves a state a retry
// fully repairs.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	if e == nil || e.devices == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	device, err := e.devices.FindByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		e.metricInc(MetricDeviceRevokeDenied)
		e.emitAudit(ctx, auditEventDeviceRevokeDenied, false, userID, "", ErrDeviceNotFound, nil)
		return ErrDeviceNotFound
	}
	if device.UserID != userID {
		e.metricInc(MetricDeviceRevokeDenied)
		e.emitAudit(ctx, auditEventDeviceRevokeDenied, false, userID, "", ErrForbidden, func() map[string]string {
			return map[string]string{
				"device_id": deviceID,
			}
		})
		return ErrForbidden
	}
	if device.RevokedAt != nil {
		return nil
	}

	if cascader, ok := e.devices.(CascadeRevoker); ok {
		if err := cascader.RevokeDeviceCascade(ctx, userID, deviceID); err != nil {
			return err
		}
	} else {
		if err := e.sessions.RevokeDeviceSessions(ctx, deviceID); err != nil {
			return err
		}
		if err := e.devices.RevokeDevice(ctx, deviceID); err != nil {
			return err
		}
	}

	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, auditEventDeviceRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"device_id": deviceID,
		}
	})
	return nil
}

func deviceInfo(d *Device) DeviceInfo {
	return DeviceInfo{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		IsPrimary:  d.IsPrimary,
		IsVerified: d.IsVerified,
		LastUsedAt: d.LastUsedAt,
		CreatedAt:  d.CreatedAt,
	}
}
