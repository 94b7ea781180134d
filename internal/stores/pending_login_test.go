package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func pendingRecord(ttl time.Duration) *PendingLogin {
	now := time.Now()
	return &PendingLogin{
		UserID:    "u1",
		Email:     "alice@example.com",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

func TestMemoryPendingLogin_SaveGetConsume(t *testing.T) {
	s := NewMemoryPendingLoginStore(0)
	defer s.Close()
	ctx := context.Background()

	record := pendingRecord(time.Minute)
	if err := s.Save(ctx, "tok", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.Email != "alice@example.com" {
		t.Fatalf("unexpected record: %+v", got)
	}

	consumed, err := s.Consume(ctx, "tok")
	if err != nil || !consumed {
		t.Fatalf("expected first consume to win, got consumed=%v err=%v", consumed, err)
	}
	consumed, err = s.Consume(ctx, "tok")
	if err != nil || consumed {
		t.Fatalf("expected second consume to lose, got consumed=%v err=%v", consumed, err)
	}
	if _, err := s.Get(ctx, "tok"); !errors.Is(err, ErrPendingLoginNotFound) {
		t.Fatalf("expected ErrPendingLoginNotFound after consume, got %v", err)
	}
}

func TestMemoryPendingLogin_Expired(t *testing.T) {
	s := NewMemoryPendingLoginStore(0)
	defer s.Close()
	ctx := context.Background()

	record := pendingRecord(-2 * time.Second)
	if err := s.Save(ctx, "tok", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := s.Get(ctx, "tok"); !errors.Is(err, ErrPendingLoginExpired) {
		t.Fatalf("expected ErrPendingLoginExpired, got %v", err)
	}
	// The expired entry was dropped on read.
	if s.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", s.Len())
	}
	// Consuming an expired leftover never yields a win.
	if err := s.Save(ctx, "tok2", pendingRecord(-2*time.Second), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if consumed, err := s.Consume(ctx, "tok2"); err != nil || consumed {
		t.Fatalf("expected consume of expired entry to lose, got consumed=%v err=%v", consumed, err)
	}
}

func TestMemoryPendingLogin_ConsumeOnceUnderConcurrency(t *testing.T) {
	s := NewMemoryPendingLoginStore(0)
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, "tok", pendingRecord(time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	const racers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			if consumed, err := s.Consume(ctx, "tok"); err == nil && consumed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestMemoryPendingLogin_Sweep(t *testing.T) {
	s := NewMemoryPendingLoginStore(10 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, "tok", pendingRecord(-2*time.Second), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected sweep to remove expired entry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisPendingLogin_SaveGetConsume(t *testing.T) {
	s := NewRedisPendingLoginStore(newTestRedis(t), "apl")
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, "tok", pendingRecord(time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.Email != "alice@example.com" {
		t.Fatalf("binary round-trip mismatch: %+v", got)
	}

	consumed, err := s.Consume(ctx, "tok")
	if err != nil || !consumed {
		t.Fatalf("expected first consume to win, got consumed=%v err=%v", consumed, err)
	}
	consumed, err = s.Consume(ctx, "tok")
	if err != nil || consumed {
		t.Fatalf("expected second consume to lose, got consumed=%v err=%v", consumed, err)
	}
	if _, err := s.Get(ctx, "tok"); !errors.Is(err, ErrPendingLoginNotFound) {
		t.Fatalf("expected ErrPendingLoginNotFound, got %v", err)
	}
}

func TestRedisPendingLogin_KeyTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisPendingLoginStore(client, "apl")
	ctx := context.Background()

	if err := s.Save(ctx, "tok", pendingRecord(time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(ctx, "tok"); !errors.Is(err, ErrPendingLoginNotFound) {
		t.Fatalf("expected key to expire with the TTL, got %v", err)
	}
}

func TestRedisPendingLogin_DriftExpiry(t *testing.T) {
	s := NewRedisPendingLoginStore(newTestRedis(t), "apl")
	ctx := context.Background()

	// Record expiry in the past but key TTL still live: the explicit check wins.
	if err := s.Save(ctx, "tok", pendingRecord(-2*time.Second), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Get(ctx, "tok"); !errors.Is(err, ErrPendingLoginExpired) {
		t.Fatalf("expected ErrPendingLoginExpired, got %v", err)
	}
}

func TestRedisPendingLogin_BackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisPendingLoginStore(client, "apl")
	ctx := context.Background()

	mr.Close()

	if err := s.Save(ctx, "tok", pendingRecord(time.Minute), time.Minute); !errors.Is(err, ErrPendingLoginBackend) {
		t.Fatalf("expected ErrPendingLoginBackend, got %v", err)
	}
	if _, err := s.Get(ctx, "tok"); !errors.Is(err, ErrPendingLoginBackend) {
		t.Fatalf("expected ErrPendingLoginBackend, got %v", err)
	}
	if _, err := s.Consume(ctx, "tok"); !errors.Is(err, ErrPendingLoginBackend) {
		t.Fatalf("expected ErrPendingLoginBackend, got %v", err)
	}
}

func TestPendingLoginEncodingRejectsUnknownVersion(t *testing.T) {
	encoded, err := encodePendingLogin(pendingRecord(time.Minute))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	encoded[0] = 99
	if _, err := decodePendingLogin(encoded); err == nil {
		t.Fatal("expected unknown record version to be rejected")
	}
}
