package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKeyPrefix = "oauth2filter:session:"

// RedisStore keeps sessions in Redis as JSON, so they survive restarts and
// are shared between replicas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces session keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisStore) { r.prefix = prefix }
}

// WithTTL sets the expiry applied on every save.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisStore) { r.ttl = ttl }
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: DefaultRedisKeyPrefix,
		ttl:    DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	s, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if s.id != id {
		return nil, fmt.Errorf("session %s stored under key of %s", s.id, id)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(s.id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	s.saved()
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func encodeSession(s *Session) ([]byte, error) {
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*Session, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return fromSnapshot(snap), nil
}
