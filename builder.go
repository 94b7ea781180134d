package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/skydrive-labs/authcore/internal/stores"
	"github.com/skydrive-labs/authcore/jwt"
	"github.com/skydrive-labs/authcore/password"
)

// Builder assembles an Engine. Repositories for users and sessions are
// mandatory; devices, history, Redis, mailer, and audit are optional and
// disable their flows when absent. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserRepository
	sessions SessionRepository
	devices  DeviceRepository
	history  PasswordHistoryRepository

	mailer    Mailer
	auditSink AuditSink
	warnf     func(format string, args ...any)

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis externalizes the pending-login store and the token blacklist to
// Redis, which is required once more than one process serves logins. Without
// it both stores are in-process.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserRepository(repo UserRepository) *Builder {
	b.users = repo
	return b
}

func (b *Builder) WithSessionRepository(repo SessionRepository) *Builder {
	b.sessions = repo
	return b
}

func (b *Builder) WithDeviceRepository(repo DeviceRepository) *Builder {
	b.devices = repo
	return b
}

func (b *Builder) WithPasswordHistoryRepository(repo PasswordHistoryRepository) *Builder {
	b.history = repo
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithWarnLogger overrides the destination for non-fatal internal warnings.
// The default is the standard library logger.
func (b *Builder) WithWarnLogger(warnf func(format string, args ...any)) *Builder {
	b.warnf = warnf
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if b.sessions == nil {
		return nil, errors.New("session repository required")
	}

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		sessions: b.sessions,
		devices:  b.devices,
		history:  b.history,
		mailer:   b.mailer,
		warnf:    b.warnf,
	}

	if b.redis != nil {
		engine.pending = stores.NewRedisPendingLoginStore(b.redis, cfg.PendingLogin.RedisPrefix)
		engine.blacklist = stores.NewRedisTokenBlacklist(b.redis, cfg.Blacklist.RedisPrefix)
	} else {
		engine.pending = stores.NewMemoryPendingLoginStore(cfg.PendingLogin.SweepInterval)
		engine.blacklist = stores.NewMemoryTokenBlacklist(cfg.Blacklist.SweepInterval)
	}

	engine.audit = newEngineAudit(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
		MaxLength:   cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
