package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingLoginRecordVersion1 = 1

// RedisPendingLoginStore externalizes pending logins to a shared cache so
// multiple stateless instances can serve both halves of a two-step login.
// Record encoding is a compact versioned binary layout, not JSON.
type RedisPendingLoginStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisPendingLoginStore(client redis.UniversalClient, prefix string) *RedisPendingLoginStore {
	if prefix == "" {
		prefix = "apl"
	}
	return &RedisPendingLoginStore{redis: client, prefix: prefix}
}

func (s *RedisPendingLoginStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *RedisPendingLoginStore) Save(ctx context.Context, token string, record *PendingLogin, ttl time.Duration) error {
	encoded, err := encodePendingLogin(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingLoginBackend, err)
	}
	return nil
}

func (s *RedisPendingLoginStore) Get(ctx context.Context, token string) (*PendingLogin, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingLoginNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingLoginBackend, err)
	}

	record, err := decodePendingLogin(data)
	if err != nil {
		return nil, err
	}
	// The key TTL normally handles expiry; the explicit check covers clock
	// drift between instances.
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(token)).Result()
		return nil, ErrPendingLoginExpired
	}
	return record, nil
}

// Consume relies on DEL's atomicity: of N concurrent consumers exactly one
// observes a deleted count of 1.
func (s *RedisPendingLoginStore) Consume(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingLoginBackend, err)
	}
	return n > 0, nil
}

func (s *RedisPendingLoginStore) Close() {}

func encodePendingLogin(record *PendingLogin) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingLoginRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 || len(record.Email) > 65535 {
		return nil, errors.New("pending login field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	return buf.Bytes(), nil
}

func decodePendingLogin(data []byte) (*PendingLogin, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingLoginRecordVersion1 {
		return nil, errors.New("invalid pending login record version")
	}

	record := &PendingLogin{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	return record, nil
}
