package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature scheme for issued tokens.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed structure, expiry, and
	// missing required claims. Callers should not distinguish further.
	ErrTokenInvalid = errors.New("invalid token")
)

// Config configures a Manager. For hs256 PrivateKey is the shared secret; for
// ed25519 PrivateKey/PublicKey are raw or PEM-encoded key halves.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Claims is the fixed payload carried by both token kinds. Use discriminates
// access from refresh tokens and is checked on every parse.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Use   string `json:"use"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. Immutable after construction and safe
// for concurrent use.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess issues a short-lived access token for the given identity.
func (m *Manager) CreateAccess(uid, email string) (string, error) {
	return m.create(uid, email, useAccess, m.config.AccessTTL)
}

// CreateRefresh issues a long-lived refresh token for the given identity.
func (m *Manager) CreateRefresh(uid, email string) (string, error) {
	return m.create(uid, email, useRefresh, m.config.RefreshTTL)
}

func (m *Manager) create(uid, email, use string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UID:   uid,
		Email: email,
		Use:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	signKey, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, useAccess)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, useRefresh)
}

func (m *Manager) parse(tokenStr, use string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UID == "" || claims.Use != use {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// DecodeExpiryUnverified reads the exp claim WITHOUT verifying the signature.
// It exists solely so Logout can pick a blacklist retention window for tokens
// it could not verify. Never use it for a trust decision.
func DecodeExpiryUnverified(tokenStr string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrTokenInvalid
	}
	return claims.ExpiresAt.Time, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
