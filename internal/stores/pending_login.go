package stores

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPendingLoginNotFound = errors.New("pending login not found")
	ErrPendingLoginExpired  = errors.New("pending login expired")
	ErrPendingLoginBackend  = errors.New("pending login backend unavailable")
)

// PendingLogin is the record of a password-verified-but-not-yet-MFA-verified
// authentication attempt, keyed by its opaque token.
type PendingLogin struct {
	UserID    string
	Email     string
	CreatedAt int64
	ExpiresAt int64
}

// PendingLoginStore stages two-step logins. Save inserts under the given
// token; Get returns ErrPendingLoginNotFound or ErrPendingLoginExpired for
// absent/expired entries (expired entries are deleted as a side effect);
// Consume deletes unconditionally and reports whether this caller removed the
// entry — only the first consumer may proceed to issue tokens.
type PendingLoginStore interface {
	Save(ctx context.Context, token string, record *PendingLogin, ttl time.Duration) error
	Get(ctx context.Context, token string) (*PendingLogin, error)
	Consume(ctx context.Context, token string) (bool, error)
	Close()
}

// MemoryPendingLoginStore is the in-process implementation: a mutex-guarded
// map with lazy expiry on read and a periodic sweep to bound memory. It does
// not synchronize across processes.
type MemoryPendingLoginStore struct {
	mu      sync.Mutex
	entries map[string]PendingLogin

	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryPendingLoginStore(sweepInterval time.Duration) *MemoryPendingLoginStore {
	s := &MemoryPendingLoginStore{
		entries: make(map[string]PendingLogin),
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

func (s *MemoryPendingLoginStore) Save(_ context.Context, token string, record *PendingLogin, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = *record
	return nil
}

func (s *MemoryPendingLoginStore) Get(_ context.Context, token string) (*PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entries[token]
	if !ok {
		return nil, ErrPendingLoginNotFound
	}
	if time.Now().Unix() > record.ExpiresAt {
		delete(s.entries, token)
		return nil, ErrPendingLoginExpired
	}
	out := record
	return &out, nil
}

// Consume is the single point of truth for the read-once guarantee: the
// check-and-delete happens under the lock, so concurrent consumers of the
// same token see exactly one true.
func (s *MemoryPendingLoginStore) Consume(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entries[token]
	if !ok {
		return false, nil
	}
	delete(s.entries, token)
	if time.Now().Unix() > record.ExpiresAt {
		return false, nil
	}
	return true, nil
}

func (s *MemoryPendingLoginStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Len reports the current entry count, expired entries included. Testing and
// operational introspection only.
func (s *MemoryPendingLoginStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryPendingLoginStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryPendingLoginStore) sweep() {
	now := time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.entries {
		if now > record.ExpiresAt {
			delete(s.entries, token)
		}
	}
}
