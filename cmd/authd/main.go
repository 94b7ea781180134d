// Command authd wires the authcore engine to Postgres and Redis and exposes
// the Prometheus metrics endpoint. It is the reference deployment shape:
// configuration comes from the environment (and an optional .env file),
// repositories from Postgres, ephemeral stores from Redis.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skydrive-labs/authcore"
	"github.com/skydrive-labs/authcore/mailer"
	"github.com/skydrive-labs/authcore/metrics/export/prometheus"
	"github.com/skydrive-labs/authcore/postgres"
	"github.com/spf13/viper"
)

type appConfig struct {
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`

	JWTSigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	JWTPrivateKey    string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey     string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer        string `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL     string `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL    string `mapstructure:"JWT_REFRESH_TTL"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`

	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`
}

func loadConfig() (*appConfig, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("METRICS_ADDR", ":9100")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_SIGNING_METHOD", "hs256")
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	if cfg.JWTPrivateKey == "" {
		return nil, errors.New("config: JWT_PRIVATE_KEY must be set")
	}
	return &cfg, nil
}

func parseTTL(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres:", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatal("schema:", err)
	}

	coreCfg := authcore.DefaultConfig()
	coreCfg.JWT.SigningMethod = cfg.JWTSigningMethod
	coreCfg.JWT.PrivateKey = []byte(cfg.JWTPrivateKey)
	coreCfg.JWT.PublicKey = []byte(cfg.JWTPublicKey)
	coreCfg.JWT.Issuer = cfg.JWTIssuer
	coreCfg.JWT.AccessTTL = parseTTL(cfg.JWTAccessTTL, 15*time.Minute)
	coreCfg.JWT.RefreshTTL = parseTTL(cfg.JWTRefreshTTL, 168*time.Hour)

	builder := authcore.New().
		WithConfig(coreCfg).
		WithUserRepository(postgres.NewUserRepository(db)).
		WithSessionRepository(postgres.NewSessionRepository(db)).
		WithDeviceRepository(postgres.NewDeviceRepository(db)).
		WithPasswordHistoryRepository(postgres.NewPasswordHistoryRepository(db)).
		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout)).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)

	if cfg.RedisAddr != "" {
		builder = builder.WithRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	if cfg.SMTPHost != "" {
		builder = builder.WithMailer(mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom))
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatal("engine:", err)
	}
	defer engine.Close()

	sweepInterval := parseTTL(cfg.SessionSweepInterval, time.Hour)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			n, err := engine.SweepExpiredSessions(ctx)
			if err != nil {
				log.Printf("session sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("session sweep: removed %d expired sessions", n)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewExporter(engine).Handler())

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
