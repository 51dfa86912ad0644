package generation

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/domain"
)

// ResultCache memoizes parsed results by content key. Get returns nil, nil
// on a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.GenerationResult, error)
	Set(ctx context.Context, key string, result *domain.GenerationResult) error
}

// SessionStore keeps generation inputs for later regeneration. Get returns
// nil, nil when the session does not exist.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
}

// MemoryResultCache is a bounded, expiring in-process cache. Entries are
// cloned on the way in and out so callers never share slices with it.
type MemoryResultCache struct {
	lru *expirable.LRU[string, *domain.GenerationResult]
}

// NewMemoryResultCache creates a cache holding at most size entries for ttl.
func NewMemoryResultCache(size int, ttl time.Duration) *MemoryResultCache {
	return &MemoryResultCache{lru: expirable.NewLRU[string, *domain.GenerationResult](size, nil, ttl)}
}

func (c *MemoryResultCache) Get(_ context.Context, key string) (*domain.GenerationResult, error) {
	result, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	return result.Clone(), nil
}

func (c *MemoryResultCache) Set(_ context.Context, key string, result *domain.GenerationResult) error {
	c.lru.Add(key, result.Clone())
	return nil
}

// Len returns the number of live entries
func (c *MemoryResultCache) Len() int {
	return c.lru.Len()
}

// MemorySessionStore is a bounded, expiring in-process session store.
type MemorySessionStore struct {
	lru *expirable.LRU[string, domain.Session]
}

// NewMemorySessionStore creates a store holding at most size sessions for ttl.
func NewMemorySessionStore(size int, ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{lru: expirable.NewLRU[string, domain.Session](size, nil, ttl)}
}

func (s *MemorySessionStore) Create(_ context.Context, session *domain.Session) error {
	s.lru.Add(session.ID, copySession(*session))
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	session, ok := s.lru.Get(id)
	if !ok {
		return nil, nil
	}
	out := copySession(session)
	return &out, nil
}

func copySession(s domain.Session) domain.Session {
	s.OCRResults = append([]string(nil), s.OCRResults...)
	s.PageNames = append([]string(nil), s.PageNames...)
	s.Scenario.TestTypes = append([]string(nil), s.Scenario.TestTypes...)
	return s
}

// RemoteStore is the shared store behind the tiered cache, satisfied by
// the Redis repository.
type RemoteStore interface {
	GetResult(ctx context.Context, key string) (*domain.GenerationResult, error)
	SetResult(ctx context.Context, key string, result *domain.GenerationResult) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	SetSession(ctx context.Context, session *domain.Session) error
}

// TieredResultCache checks the local cache first, then the shared store,
// and promotes shared hits locally. Shared store failures degrade to a miss.
type TieredResultCache struct {
	local  ResultCache
	remote RemoteStore
	logger *zap.Logger
}

// NewTieredResultCache layers local over remote
func NewTieredResultCache(local ResultCache, remote RemoteStore, logger *zap.Logger) *TieredResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredResultCache{local: local, remote: remote, logger: logger.Named("cache")}
}

func (c *TieredResultCache) Get(ctx context.Context, key string) (*domain.GenerationResult, error) {
	if result, err := c.local.Get(ctx, key); err != nil || result != nil {
		return result, err
	}

	result, err := c.remote.GetResult(ctx, key)
	if err != nil {
		c.logger.Warn("shared cache read failed", zap.String("cache_key", shortKey(key)), zap.Error(err))
		return nil, nil
	}
	if result == nil {
		return nil, nil
	}

	if err := c.local.Set(ctx, key, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *TieredResultCache) Set(ctx context.Context, key string, result *domain.GenerationResult) error {
	if err := c.local.Set(ctx, key, result); err != nil {
		return err
	}
	if err := c.remote.SetResult(ctx, key, result); err != nil {
		c.logger.Warn("shared cache write failed", zap.String("cache_key", shortKey(key)), zap.Error(err))
	}
	return nil
}

// TieredSessionStore writes sessions to both tiers and reads local first.
// Unlike the result cache, a session lost from the shared store cannot be
// rebuilt, so shared store errors are returned.
type TieredSessionStore struct {
	local  SessionStore
	remote RemoteStore
}

// NewTieredSessionStore layers local over remote
func NewTieredSessionStore(local SessionStore, remote RemoteStore) *TieredSessionStore {
	return &TieredSessionStore{local: local, remote: remote}
}

func (s *TieredSessionStore) Create(ctx context.Context, session *domain.Session) error {
	if err := s.remote.SetSession(ctx, session); err != nil {
		return err
	}
	return s.local.Create(ctx, session)
}

func (s *TieredSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	if session, err := s.local.Get(ctx, id); err != nil || session != nil {
		return session, err
	}

	session, err := s.remote.GetSession(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	if err := s.local.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
