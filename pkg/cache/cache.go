// Package cache stores finished generation results in Redis, keyed by a
// digest of the brand brief, so identical briefs can be served without
// re-running the pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/pkg/observability"
)

// ErrMiss is returned when no cached result exists for a brief.
var ErrMiss = errors.New("cache miss")

// DefaultTTL is how long cached results live.
const DefaultTTL = 24 * time.Hour

// Entry is the cached form of a finished generation.
type Entry struct {
	SessionID string          `json:"sessionId"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Cache is a Redis-backed result cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Options configures a Cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis at %s: %w", opts.Addr, err)
	}

	return &Cache{client: client, ttl: opts.TTL, prefix: "logoforge:result:"}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl, prefix: "logoforge:result:"}
}

// Key derives the deterministic cache key for a brief.
func Key(brief agent.Brief) string {
	// json.Marshal writes struct fields in declaration order, so the digest
	// is stable for equal briefs.
	raw, _ := json.Marshal(brief)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for a brief, or ErrMiss.
func (c *Cache) Get(ctx context.Context, brief agent.Brief) (*Entry, error) {
	raw, err := c.client.Get(ctx, c.prefix+Key(brief)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordCacheLookup("miss")
		return nil, ErrMiss
	}
	if err != nil {
		observability.RecordCacheLookup("error")
		return nil, fmt.Errorf("cache: get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		observability.RecordCacheLookup("error")
		return nil, fmt.Errorf("cache: decode entry: %w", err)
	}
	observability.RecordCacheLookup("hit")
	return &entry, nil
}

// Put stores a finished result under the brief's key.
func (c *Cache) Put(ctx context.Context, brief agent.Brief, sessionID string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache: encode result: %w", err)
	}
	entry, err := json.Marshal(Entry{
		SessionID: sessionID,
		Result:    raw,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+Key(brief), entry, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Invalidate removes the cached entry for a brief.
func (c *Cache) Invalidate(ctx context.Context, brief agent.Brief) error {
	return c.client.Del(ctx, c.prefix+Key(brief)).Err()
}

// Ping checks the Redis connection. Usable as a health probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
