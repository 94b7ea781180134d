package authcore

import (
	"errors"
	"time"
)

// Config carries every tunable of the Engine. Construct with defaults via
// [New] and override per section; Build validates the result.
type Config struct {
	JWT          JWTConfig
	PendingLogin PendingLoginConfig
	Blacklist    BlacklistConfig
	Password     PasswordConfig
	TOTP         TOTPConfig
	Refresh      RefreshConfig
	Reset        ResetConfig
	Verification VerificationConfig
	Device       DeviceConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// JWTConfig configures the token codec. SigningMethod is "ed25519" (default)
// or "hs256". For hs256 PrivateKey is the shared secret; for ed25519 both key
// halves are required.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// PendingLoginConfig bounds the window between password check and TOTP
// confirmation.
type PendingLoginConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	RedisPrefix   string
}

// BlacklistConfig controls refresh-token deny-list housekeeping. FallbackTTL
// is used when a token presented to Logout cannot be decoded at all, so its
// real expiry is unknown.
type BlacklistConfig struct {
	SweepInterval time.Duration
	FallbackTTL   time.Duration
	RedisPrefix   string
}

// PasswordConfig holds argon2id cost parameters, the accepted plaintext
// length bounds, and the history retention depth.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int
	MaxLength int

	// HistoryDepth is the number of recent hashes retained and checked for
	// reuse. Zero disables the history policy.
	HistoryDepth int
}

// TOTPConfig configures second-factor verification. Period and Skew follow
// RFC 6238: 30-second steps with one step of tolerance either side.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period uint
	Skew   uint
}

// RefreshConfig controls rotation behavior.
type RefreshConfig struct {
	// BlacklistOnRotate invalidates the presented refresh token when a new
	// pair is issued. Off by default: rotation without invalidation is the
	// compatible policy, which leaves a stolen-but-unexpired old token usable
	// until its natural expiry. Turn this on to close that window.
	BlacklistOnRotate bool

	// TouchSessionActivity updates the persisted session row (new refresh
	// hash, last-activity timestamp) on every rotation. Best-effort.
	TouchSessionActivity bool
}

// ResetConfig bounds password reset tokens.
type ResetConfig struct {
	TokenTTL time.Duration
}

// VerificationConfig bounds email verification tokens.
type VerificationConfig struct {
	TokenTTL time.Duration
}

// DeviceConfig bounds device verification tokens.
type DeviceConfig struct {
	VerificationTTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration [New] starts from. Tweak fields and
// pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authcore",
		},
		PendingLogin: PendingLoginConfig{
			TTL:           3 * time.Minute,
			SweepInterval: time.Minute,
			RedisPrefix:   "apl",
		},
		Blacklist: BlacklistConfig{
			SweepInterval: 5 * time.Minute,
			FallbackTTL:   7 * 24 * time.Hour,
			RedisPrefix:   "abl",
		},
		Password: PasswordConfig{
			Memory:       65536,
			Time:         3,
			Parallelism:  2,
			SaltLength:   16,
			KeyLength:    32,
			MinLength:    8,
			MaxLength:    100,
			HistoryDepth: 5,
		},
		TOTP: TOTPConfig{
			Issuer: "skydrive",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		Refresh: RefreshConfig{
			BlacklistOnRotate:    false,
			TouchSessionActivity: true,
		},
		Reset: ResetConfig{
			TokenTTL: time.Hour,
		},
		Verification: VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		Device: DeviceConfig{
			VerificationTTL: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return errors.New("jwt TTLs must be positive")
	}
	if cfg.JWT.AccessTTL >= cfg.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.PendingLogin.TTL <= 0 {
		return errors.New("pending login TTL must be positive")
	}
	if cfg.Blacklist.FallbackTTL <= 0 {
		return errors.New("blacklist fallback TTL must be positive")
	}
	if cfg.Password.MinLength < 1 || cfg.Password.MaxLength < cfg.Password.MinLength {
		return errors.New("invalid password length bounds")
	}
	if cfg.Password.HistoryDepth < 0 {
		return errors.New("password history depth must not be negative")
	}
	if cfg.TOTP.Digits != 6 && cfg.TOTP.Digits != 8 {
		return errors.New("totp digits must be 6 or 8")
	}
	if cfg.TOTP.Period == 0 {
		return errors.New("totp period must be positive")
	}
	switch cfg.JWT.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("unsupported signing method")
	}
	return nil
}
