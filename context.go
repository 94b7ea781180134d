package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceFingerprintContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine records it
// on new sessions and in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is stored on
// new sessions for later device listing.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceFingerprint attaches a client-computed device fingerprint to ctx.
// Device registration uses it to dedupe known devices per user.
func WithDeviceFingerprint(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, deviceFingerprintContextKey{}, fingerprint)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func deviceFingerprintFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	fingerprint, _ := ctx.Value(deviceFingerprintContextKey{}).(string)
	return fingerprint
}
