package session

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const DefaultIdleTimeout = 30 * time.Minute

// MemoryStore keeps sessions in process. Every access extends a session's
// lifetime by the idle timeout.
type MemoryStore struct {
	cache *ttlcache.Cache[string, snapshot]
}

type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	idle     time.Duration
	capacity uint64
}

// WithIdleTimeout sets how long an untouched session survives.
func WithIdleTimeout(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.idle = d }
}

// WithMaxSessions bounds the number of stored sessions; the least recently
// used is evicted first. Zero means unbounded.
func WithMaxSessions(n uint64) MemoryOption {
	return func(o *memoryOptions) { o.capacity = n }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	o := memoryOptions{idle: DefaultIdleTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []ttlcache.Option[string, snapshot]{
		ttlcache.WithTTL[string, snapshot](o.idle),
	}
	if o.capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, snapshot](o.capacity))
	}
	return &MemoryStore{cache: ttlcache.New[string, snapshot](cacheOpts...)}
}

// Start runs the expired-session cleanup loop until Stop is called.
func (m *MemoryStore) Start() { m.cache.Start() }

func (m *MemoryStore) Stop() { m.cache.Stop() }

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	item := m.cache.Get(id)
	if item == nil {
		return nil, ErrNotFound
	}
	return fromSnapshot(item.Value()), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.cache.Set(s.id, s.snapshot(), ttlcache.DefaultTTL)
	s.saved()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

// Len returns the number of stored sessions, expired ones included until
// they are cleaned up.
func (m *MemoryStore) Len() int { return m.cache.Len() }
