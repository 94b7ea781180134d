package stores

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBlacklistBackend signals an externalized blacklist backend failure.
var ErrBlacklistBackend = errors.New("token blacklist backend unavailable")

// TokenBlacklist is the deny-list of refresh tokens invalidated before their
// natural expiry. An entry past its own expiry is logically absent:
// IsBlacklisted must never report true for it, because the token itself
// already fails signature-expiry verification. Add with an expiry in the past
// is a no-op.
type TokenBlacklist interface {
	Add(ctx context.Context, token string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	Remove(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
	Close()
}

// MemoryTokenBlacklist is the in-process implementation: a mutex-guarded map
// from raw token to expiry, with lazy removal on lookup and a periodic sweep.
// It does not synchronize across processes.
type MemoryTokenBlacklist struct {
	mu      sync.Mutex
	entries map[string]int64

	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryTokenBlacklist(sweepInterval time.Duration) *MemoryTokenBlacklist {
	b := &MemoryTokenBlacklist{
		entries: make(map[string]int64),
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go b.sweepLoop(sweepInterval)
	}
	return b
}

func (b *MemoryTokenBlacklist) Add(_ context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(time.Now()) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[token] = expiresAt.Unix()
	return nil
}

func (b *MemoryTokenBlacklist) IsBlacklisted(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiresAt, ok := b.entries[token]
	if !ok {
		return false, nil
	}
	if time.Now().Unix() >= expiresAt {
		delete(b.entries, token)
		return false, nil
	}
	return true, nil
}

func (b *MemoryTokenBlacklist) Remove(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, token)
	return nil
}

func (b *MemoryTokenBlacklist) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]int64)
	return nil
}

// Size counts only entries that are still live.
func (b *MemoryTokenBlacklist) Size(_ context.Context) (int, error) {
	now := time.Now().Unix()

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, expiresAt := range b.entries {
		if now < expiresAt {
			n++
		}
	}
	return n, nil
}

func (b *MemoryTokenBlacklist) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

func (b *MemoryTokenBlacklist) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.sweep()
		case <-b.done:
			return
		}
	}
}

func (b *MemoryTokenBlacklist) sweep() {
	now := time.Now().Unix()

	b.mu.Lock()
	defer b.mu.Unlock()
	for token, expiresAt := range b.entries {
		if now >= expiresAt {
			delete(b.entries, token)
		}
	}
}
