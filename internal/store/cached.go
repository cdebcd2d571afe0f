package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drivecast/drivecast/internal/cache"
	"github.com/drivecast/drivecast/internal/models"
)

// Cache TTLs for different entity types. Stats and logs are kept short so the
// dashboard never lags far behind the store.
const (
	ttlChannels = 2 * time.Minute
	ttlChannel  = 5 * time.Minute
	ttlMedia    = 30 * time.Second
	ttlMediaOne = 1 * time.Minute
	ttlLogs     = 10 * time.Second
	ttlStats    = 10 * time.Second
)

// CachedStore wraps a Store with a Redis caching layer.
// Read-heavy operations are served from cache when possible;
// write operations invalidate the relevant cache keys.
type CachedStore struct {
	inner Store
	cache *cache.Redis
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

// --- cached read operations ---

func (c *CachedStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	const key = "channels:all"
	if v, err := cache.Get[[]models.Channel](ctx, c.cache, key); err == nil {
		return v, nil
	}
	channels, err := c.inner.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, channels, ttlChannels); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return channels, nil
}

func (c *CachedStore) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	key := fmt.Sprintf("channel:%d", channelID)
	if v, err := cache.Get[models.Channel](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	ch, err := c.inner.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, ch, ttlChannel); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return ch, nil
}

// mediaListResult is a helper type to cache the ListMedia tuple.
type mediaListResult struct {
	Media []models.MediaFile `json:"media"`
	Total int                `json:"total"`
}

func (c *CachedStore) ListMedia(ctx context.Context, filter MediaFilter) ([]models.MediaFile, int, error) {
	key := fmt.Sprintf("media:%s", filterHash(filter))
	if v, err := cache.Get[mediaListResult](ctx, c.cache, key); err == nil {
		return v.Media, v.Total, nil
	}
	media, total, err := c.inner.ListMedia(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if err := cache.Set(ctx, c.cache, key, mediaListResult{Media: media, Total: total}, ttlMedia); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return media, total, nil
}

func (c *CachedStore) GetMedia(ctx context.Context, mediaID int64) (*models.MediaFile, error) {
	key := fmt.Sprintf("mediafile:%d", mediaID)
	if v, err := cache.Get[models.MediaFile](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	m, err := c.inner.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, m, ttlMediaOne); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return m, nil
}

func (c *CachedStore) ListLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	key := fmt.Sprintf("logs:%d", limit)
	if v, err := cache.Get[[]models.LogEntry](ctx, c.cache, key); err == nil {
		return v, nil
	}
	entries, err := c.inner.ListLogs(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, entries, ttlLogs); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return entries, nil
}

func (c *CachedStore) GetStats(ctx context.Context) (*models.Stats, error) {
	const key = "stats"
	if v, err := cache.Get[models.Stats](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	s, err := c.inner.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, s, ttlStats); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return s, nil
}

// --- write operations with cache invalidation ---

func (c *CachedStore) CreateChannel(ctx context.Context, ch *models.Channel) (int64, error) {
	id, err := c.inner.CreateChannel(ctx, ch)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, "channels:all")
	return id, nil
}

func (c *CachedStore) InsertDiscovered(ctx context.Context, channelID int64, f models.DiscoveredFile) (bool, error) {
	created, err := c.inner.InsertDiscovered(ctx, channelID, f)
	if err != nil {
		return false, err
	}
	if created {
		c.invalidate(ctx, "stats")
		c.invalidatePattern(ctx, "media:*")
	}
	return created, nil
}

func (c *CachedStore) UpdateMedia(ctx context.Context, mediaID int64, fields MediaUpdate) error {
	if err := c.inner.UpdateMedia(ctx, mediaID, fields); err != nil {
		return err
	}
	c.invalidateMedia(ctx, mediaID)
	return nil
}

func (c *CachedStore) ClaimForPublish(ctx context.Context, mediaID, channelID int64, dailyLimit int) (ClaimOutcome, error) {
	outcome, err := c.inner.ClaimForPublish(ctx, mediaID, channelID, dailyLimit)
	if err != nil {
		return outcome, err
	}
	if outcome == ClaimGranted {
		c.invalidateMedia(ctx, mediaID)
	}
	return outcome, nil
}

func (c *CachedStore) MarkPublished(ctx context.Context, mediaID int64, link string) (bool, error) {
	ok, err := c.inner.MarkPublished(ctx, mediaID, link)
	if err != nil {
		return false, err
	}
	if ok {
		c.invalidateMedia(ctx, mediaID)
	}
	return ok, nil
}

func (c *CachedStore) MarkFailed(ctx context.Context, mediaID int64) error {
	if err := c.inner.MarkFailed(ctx, mediaID); err != nil {
		return err
	}
	c.invalidateMedia(ctx, mediaID)
	return nil
}

func (c *CachedStore) ResetToPending(ctx context.Context, mediaID int64) (bool, error) {
	ok, err := c.inner.ResetToPending(ctx, mediaID)
	if err != nil {
		return false, err
	}
	if ok {
		c.invalidateMedia(ctx, mediaID)
	}
	return ok, nil
}

func (c *CachedStore) AppendLog(ctx context.Context, e *models.LogEntry) error {
	if err := c.inner.AppendLog(ctx, e); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "logs:*")
	return nil
}

// --- passthrough (no caching) ---

// Scheduling reads are never cached: a stale list could delay or repeat a
// due publish.
func (c *CachedStore) ListDuePublishes(ctx context.Context, now time.Time) ([]models.MediaFile, error) {
	return c.inner.ListDuePublishes(ctx, now)
}

func (c *CachedStore) GetSetting(ctx context.Context, key string) (string, error) {
	return c.inner.GetSetting(ctx, key)
}

func (c *CachedStore) SetSetting(ctx context.Context, key, value string) error {
	return c.inner.SetSetting(ctx, key, value)
}

// --- helpers ---

// invalidateMedia drops everything a media write can make stale.
func (c *CachedStore) invalidateMedia(ctx context.Context, mediaID int64) {
	c.invalidate(ctx, fmt.Sprintf("mediafile:%d", mediaID), "stats")
	c.invalidatePattern(ctx, "media:*")
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && err != redis.Nil {
		log.Printf("cache: del %v: %v", keys, err)
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			log.Printf("cache: del pattern %s: %v", p, err)
		}
	}
}

// filterHash produces a short deterministic hash for a MediaFilter so it can
// be used as part of a cache key.
func filterHash(f MediaFilter) string {
	ch, st := "", ""
	if f.ChannelID != nil {
		ch = fmt.Sprintf("%d", *f.ChannelID)
	}
	if f.Status != nil {
		st = string(*f.Status)
	}
	raw := fmt.Sprintf("%s|%s|%d|%d", ch, st, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
