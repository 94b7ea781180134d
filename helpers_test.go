package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*User)}
}

func (r *fakeUserRepo) put(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *fakeUserRepo) get(id string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (r *fakeUserRepo) find(match func(*User) bool) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	return r.find(func(u *User) bool { return u.Email == email }), nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*User, error) {
	return r.get(id), nil
}

func (r *fakeUserRepo) FindByPasswordResetToken(_ context.Context, token string) (*User, error) {
	if token == "" {
		return nil, nil
	}
	return r.find(func(u *User) bool { return u.PasswordResetToken == token }), nil
}

func (r *fakeUserRepo) FindByEmailVerificationToken(_ context.Context, token string) (*User, error) {
	if token == "" {
		return nil, nil
	}
	return r.find(func(u *User) bool { return u.EmailVerificationToken == token }), nil
}

func (r *fakeUserRepo) Save(_ context.Context, u *User) error {
	r.put(u)
	return nil
}

func (r *fakeUserRepo) UpdateTOTPSecret(_ context.Context, userID, secret string) error {
	return r.update(userID, func(u *User) { u.TOTPSecret = secret })
}

func (r *fakeUserRepo) UpdatePasswordResetToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	return r.update(userID, func(u *User) {
		u.PasswordResetToken = token
		u.PasswordResetExpiresAt = expiresAt
	})
}

func (r *fakeUserRepo) ResetFailedLoginAttempts(_ context.Context, userID string) error {
	return r.update(userID, func(u *User) { u.FailedLoginAttempts = 0 })
}

func (r *fakeUserRepo) UnlockAccount(_ context.Context, userID string) error {
	return r.update(userID, func(u *User) {
		u.LockedUntil = nil
		u.FailedLoginAttempts = 0
	})
}

func (r *fakeUserRepo) MarkEmailAsVerified(_ context.Context, userID string) error {
	return r.update(userID, func(u *User) { u.EmailVerified = true })
}

func (r *fakeUserRepo) update(userID string, mutate func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		mutate(u)
	}
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*Session)}
}

func (r *fakeSessionRepo) Save(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) FindByRefreshTokenHash(_ context.Context, hash string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshTokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindByUserID(_ context.Context, userID string) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) FindByDeviceID(_ context.Context, deviceID string) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if s.DeviceID == deviceID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) RevokeSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok && s.RevokedAt == nil {
		now := time.Now()
		s.RevokedAt = &now
	}
	return nil
}

func (r *fakeSessionRepo) RevokeAllUserSessions(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (r *fakeSessionRepo) RevokeDeviceSessions(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.sessions {
		if s.DeviceID == deviceID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeleteExpiredSessions(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range r.sessions {
		if now.After(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) UpdateLastActivity(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastActivityAt = time.Now()
	}
	return nil
}

func (r *fakeSessionRepo) activeCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	now := time.Now()
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active(now) {
			n++
		}
	}
	return n
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*Device
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{devices: make(map[string]*Device)}
}

func (r *fakeDeviceRepo) put(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.devices[d.ID] = &cp
}

func (r *fakeDeviceRepo) FindByID(_ context.Context, id string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDeviceRepo) FindByUserID(_ context.Context, userID string) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Device
	for _, d := range r.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) FindByFingerprint(_ context.Context, userID, fingerprint string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint && d.RevokedAt == nil {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDeviceRepo) FindPrimaryDevice(_ context.Context, userID string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.UserID == userID && d.IsPrimary && d.RevokedAt == nil {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDeviceRepo) FindVerifiedDevices(_ context.Context, userID string) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Device
	for _, d := range r.devices {
		if d.UserID == userID && d.IsVerified && d.RevokedAt == nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) RevokeDevice(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceID]; ok && d.RevokedAt == nil {
		now := time.Now()
		d.RevokedAt = &now
	}
	return nil
}

func (r *fakeDeviceRepo) Save(_ context.Context, d *Device) error {
	r.put(d)
	return nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries map[string][]PasswordHistoryEntry
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{entries: make(map[string][]PasswordHistoryEntry)}
}

func (r *fakeHistoryRepo) Save(_ context.Context, entry *PasswordHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Newest first.
	r.entries[entry.UserID] = append([]PasswordHistoryEntry{*entry}, r.entries[entry.UserID]...)
	return nil
}

func (r *fakeHistoryRepo) GetRecentPasswords(_ context.Context, userID string, limit int) ([]PasswordHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[userID]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *fakeHistoryRepo) ClearOldPasswords(_ context.Context, userID string, keepCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entries := r.entries[userID]; len(entries) > keepCount {
		r.entries[userID] = entries[:keepCount]
	}
	return nil
}

func (r *fakeHistoryRepo) count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[userID])
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+": "+subject)
	return nil
}

type testFixture struct {
	engine   *Engine
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	devices  *fakeDeviceRepo
	history  *fakeHistoryRepo
	mailer   *recordingMailer
	sink     *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret-0123456789abcdef")
	// Fast argon2 parameters; production costs would dominate test time.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testFixture {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	f := &testFixture{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		devices:  newFakeDeviceRepo(),
		history:  newFakeHistoryRepo(),
		mailer:   &recordingMailer{},
		sink:     NewChannelSink(64),
	}

	engine, err := New().
		WithConfig(cfg).
		WithUserRepository(f.users).
		WithSessionRepository(f.sessions).
		WithDeviceRepository(f.devices).
		WithPasswordHistoryRepository(f.history).
		WithMailer(f.mailer).
		WithAuditSink(f.sink).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	f.engine = engine
	return f
}

func (f *testFixture) seedUser(t *testing.T, id, email, plain string) *User {
	t.Helper()

	hash, err := f.engine.passwordHash.Hash(plain)
	if err != nil {
		t.Fatalf("seed hash failed: %v", err)
	}
	u := &User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	f.users.put(u)
	return u
}

func (f *testFixture) seedUserWithTOTP(t *testing.T, id, email, plain string) (*User, string) {
	t.Helper()

	f.seedUser(t, id, email, plain)
	prov, err := f.engine.ProvisionTOTP(context.Background(), id)
	if err != nil {
		t.Fatalf("ProvisionTOTP failed: %v", err)
	}
	return f.users.get(id), prov.Secret
}

func totpCodeNow(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("totp code generation failed: %v", err)
	}
	return code
}

// login runs the full two-step flow and returns the issued pair.
func (f *testFixture) login(t *testing.T, email, plain, secret string) *TokenPair {
	t.Helper()

	pending, err := f.engine.VerifyCredentials(context.Background(), email, plain)
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	pair, err := f.engine.VerifyTOTP(context.Background(), pending.SessionToken, totpCodeNow(t, secret))
	if err != nil {
		t.Fatalf("VerifyTOTP failed: %v", err)
	}
	return pair
}
