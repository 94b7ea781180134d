package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenBlacklist externalizes the deny-list to a shared cache. Keys are
// the SHA-256 of the raw token (refresh tokens are long; hashing bounds key
// size and keeps raw tokens out of the cache), with the key TTL set to the
// token's remaining lifetime so entries self-expire.
type RedisTokenBlacklist struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisTokenBlacklist(client redis.UniversalClient, prefix string) *RedisTokenBlacklist {
	if prefix == "" {
		prefix = "abl"
	}
	return &RedisTokenBlacklist{redis: client, prefix: prefix}
}

func (b *RedisTokenBlacklist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return b.prefix + ":" + hex.EncodeToString(sum[:])
}

func (b *RedisTokenBlacklist) Add(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, b.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := b.redis.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return n > 0, nil
}

func (b *RedisTokenBlacklist) Remove(ctx context.Context, token string) error {
	if err := b.redis.Del(ctx, b.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return nil
}

func (b *RedisTokenBlacklist) Clear(ctx context.Context) error {
	iter := b.redis.Scan(ctx, 0, b.prefix+":*", 256).Iterator()
	for iter.Next(ctx) {
		if err := b.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return nil
}

func (b *RedisTokenBlacklist) Size(ctx context.Context) (int, error) {
	n := 0
	iter := b.redis.Scan(ctx, 0, b.prefix+":*", 256).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return n, nil
}

func (b *RedisTokenBlacklist) Close() {}
