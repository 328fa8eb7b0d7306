package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/puzzlehunt/huntserver/internal/logger"
)

const name string = "github.com/puzzlehunt/huntserver/cmd/server/internal/leaderboard"

var tracer = otel.Tracer(name)

const redisKey = "huntserver-leaderboard"

// Loader reads the unsorted standings from storage.
type Loader func(ctx context.Context) ([]Entry, error)

// Cache keeps the sorted standings for ttl. With a redis client the ordering is shared between server
// replicas; without one it is kept in process. Concurrent misses load once.
type Cache struct {
	load  Loader
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group
	// Bumped by Invalidate; a load that started under an older generation is not stored.
	generation atomic.Uint64

	mu      sync.Mutex
	local   []Entry
	expires time.Time
	now     func() time.Time
}

func NewCache(load Loader, client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{load: load, redis: client, ttl: ttl, now: time.Now}
}

func (c *Cache) Board(ctx context.Context, viewer uuid.UUID) (Board, error) {
	ctx, span := tracer.Start(ctx, "Board")
	defer span.End()

	sorted, err := c.Sorted(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get standings")
		return Board{}, err
	}

	b := View(sorted, viewer)
	span.SetAttributes(attribute.Int("rows", len(b.Rows)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "built board")
	return b, nil
}

// Sorted returns every team's entry, hidden ones included, best first.
func (c *Cache) Sorted(ctx context.Context) ([]Entry, error) {
	if entries, ok := c.cached(ctx); ok {
		return entries, nil
	}

	v, err, shared := c.group.Do(redisKey, func() (any, error) {
		// the load is shared, so one caller going away must not fail the others
		ctx := context.WithoutCancel(ctx)
		gen := c.generation.Load()
		if entries, ok := c.cached(ctx); ok {
			return entries, nil
		}
		entries, err := c.load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load standings: %w", err)
		}
		Sort(entries)
		c.store(ctx, gen, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Logger.DebugContext(ctx, "shared leaderboard load")
	}
	return v.([]Entry), nil
}

func (c *Cache) cached(ctx context.Context) ([]Entry, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	if c.redis == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.local != nil && c.now().Before(c.expires) {
			return c.local, true
		}
		return nil, false
	}

	raw, err := c.redis.Get(ctx, redisKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Logger.WarnContext(ctx, "failed to read cached leaderboard", "error", err)
		}
		return nil, false
	}
	var stored []cachedEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.Logger.WarnContext(ctx, "discarding unreadable cached leaderboard", "error", err)
		return nil, false
	}
	entries := make([]Entry, len(stored))
	for i, e := range stored {
		entries[i] = e.Entry
		entries[i].IsHidden = e.IsHidden
		entries[i].CreationTime = e.CreationTime
	}
	return entries, true
}

func (c *Cache) store(ctx context.Context, gen uint64, entries []Entry) {
	if c.ttl <= 0 {
		return
	}

	if c.redis == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation.Load() != gen {
			return
		}
		c.local = entries
		c.expires = c.now().Add(c.ttl)
		return
	}

	raw, err := json.Marshal(cacheable(entries))
	if err != nil {
		logger.Logger.WarnContext(ctx, "failed to encode leaderboard", "error", err)
		return
	}
	if c.generation.Load() != gen {
		return
	}
	if err := c.redis.Set(ctx, redisKey, raw, c.ttl).Err(); err != nil {
		logger.Logger.WarnContext(ctx, "failed to cache leaderboard", "error", err)
	}
}

// Drops the cached ordering so the next read reloads it.
// A load already in flight still answers its callers but is not cached.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.generation.Add(1)
	c.local = nil
	c.mu.Unlock()
	c.group.Forget(redisKey)

	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKey).Err(); err != nil {
			logger.Logger.WarnContext(ctx, "failed to invalidate leaderboard", "error", err)
		}
	}
}

// cachedEntry carries the fields the public json encoding leaves out.
type cachedEntry struct {
	Entry
	IsHidden     bool      `json:"is_hidden"`
	CreationTime time.Time `json:"creation_time"`
}

func cacheable(entries []Entry) []cachedEntry {
	out := make([]cachedEntry, len(entries))
	for i, e := range entries {
		out[i] = cachedEntry{Entry: e, IsHidden: e.IsHidden, CreationTime: e.CreationTime}
	}
	return out
}
