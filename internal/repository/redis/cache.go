package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/testforge/casegen/internal/config"
	"github.com/testforge/casegen/internal/domain"
)

// Cache stores generation results and sessions in Redis so several API
// instances share one cache.
type Cache struct {
	client     *redis.Client
	resultTTL  time.Duration
	sessionTTL time.Duration
}

// Key prefixes for different cache types
const (
	PrefixResult  = "casegen:result:"
	PrefixSession = "casegen:session:"
)

// Default TTLs
const (
	DefaultResultTTL  = 24 * time.Hour
	DefaultSessionTTL = 72 * time.Hour
)

// New creates a new Redis cache client
func New(cfg config.RedisConfig, resultTTL, sessionTTL time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewFromClient(client, resultTTL, sessionTTL), nil
}

// NewFromClient wraps an existing client. Non-positive TTLs take defaults.
func NewFromClient(client *redis.Client, resultTTL, sessionTTL time.Duration) *Cache {
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Cache{client: client, resultTTL: resultTTL, sessionTTL: sessionTTL}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for advanced operations
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Generation results

// GetResult returns the cached result for key, or nil on a miss.
func (c *Cache) GetResult(ctx context.Context, key string) (*domain.GenerationResult, error) {
	var result domain.GenerationResult
	found, err := c.getJSON(ctx, PrefixResult+key, &result)
	if err != nil || !found {
		return nil, err
	}
	return &result, nil
}

// SetResult caches a result under key
func (c *Cache) SetResult(ctx context.Context, key string, result *domain.GenerationResult) error {
	return c.setJSON(ctx, PrefixResult+key, result, c.resultTTL)
}

// Sessions

// GetSession returns the session with id, or nil when it does not exist.
func (c *Cache) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	found, err := c.getJSON(ctx, PrefixSession+id, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// SetSession stores a session
func (c *Cache) SetSession(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	return c.setJSON(ctx, PrefixSession+session.ID, session, c.sessionTTL)
}

func (c *Cache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
