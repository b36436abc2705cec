// Package authcache caches established authentications for stateless
// requests, keyed by filter name and a per-request cache key.
package authcache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/oauth2preauth/go-oauth2-filter/core"
)

const DefaultTTL = 5 * time.Minute

// Cache is the external authentication cache consulted before and
// populated after authentication. Concurrent Puts for one key are
// last-write-wins.
type Cache interface {
	Get(filterName, key string) (*core.Authentication, bool)
	Put(filterName, key string, auth *core.Authentication)
}

// Memory is an in-process Cache. Entries expire after a fixed TTL measured
// from the Put; reads do not extend it.
type Memory struct {
	cache *ttlcache.Cache[string, *core.Authentication]
}

type Option func(*options)

type options struct {
	ttl      time.Duration
	capacity uint64
}

func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithCapacity bounds the number of cached authentications.
func WithCapacity(n uint64) Option {
	return func(o *options) { o.capacity = n }
}

func NewMemory(opts ...Option) *Memory {
	o := options{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []ttlcache.Option[string, *core.Authentication]{
		ttlcache.WithTTL[string, *core.Authentication](o.ttl),
		ttlcache.WithDisableTouchOnHit[string, *core.Authentication](),
	}
	if o.capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, *core.Authentication](o.capacity))
	}
	return &Memory{cache: ttlcache.New[string, *core.Authentication](cacheOpts...)}
}

func entryKey(filterName, key string) string { return filterName + "\x00" + key }

func (m *Memory) Get(filterName, key string) (*core.Authentication, bool) {
	item := m.cache.Get(entryKey(filterName, key))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (m *Memory) Put(filterName, key string, auth *core.Authentication) {
	if auth == nil {
		return
	}
	m.cache.Set(entryKey(filterName, key), auth, ttlcache.DefaultTTL)
}

// Start runs the expired-entry cleanup loop until Stop is called.
func (m *Memory) Start() { m.cache.Start() }

func (m *Memory) Stop() { m.cache.Stop() }
