// Package webcache wraps the store's persistent web-page cache with the
// TTL defaulting and periodic sweep behavior spec'd for fetched pages
// (spec §4.11).
package webcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelai/localrag/store"
)

// defaultSweepInterval is the default TTL New falls back to when given a
// non-positive defaultTTL; it is not used as a sweep interval.
const defaultSweepInterval = 24 * time.Hour

// Cache is a thin, testable wrapper over *store.Store's web-page cache
// methods, adding a default TTL and a background expiry sweep.
type Cache struct {
	s          *store.Store
	defaultTTL time.Duration
	stop       chan struct{}
}

// New wraps s. defaultTTL is used by Put when the caller doesn't supply
// one; sweepInterval controls how often expired pages are purged in the
// background (zero disables the background sweep — call Cleanup
// manually instead).
func New(s *store.Store, defaultTTL, sweepInterval time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = defaultSweepInterval
	}
	c := &Cache{s: s, defaultTTL: defaultTTL, stop: make(chan struct{})}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

// Close stops the background sweep goroutine, if running.
func (c *Cache) Close() {
	close(c.stop)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := c.Cleanup(context.Background()); err != nil {
				slog.Error("webcache: sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("webcache: swept expired pages", "count", n)
			}
		case <-c.stop:
			return
		}
	}
}

// Put caches page content for url, defaulting ttl to the Cache's
// configured default when zero (spec §4.11 cacheWebPage).
func (c *Cache) Put(ctx context.Context, url, title, content, metadata string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.s.CacheWebPage(ctx, store.CachedWebPage{
		URL:       url,
		Title:     title,
		Content:   content,
		FetchedAt: time.Now().UTC(),
		TTL:       ttl,
		Metadata:  metadata,
	})
}

// Get returns the cached page for url, or (nil, nil) if absent or
// expired (spec §4.11 getCachedWebPage).
func (c *Cache) Get(ctx context.Context, url string) (*store.CachedWebPage, error) {
	return c.s.GetCachedWebPage(ctx, url)
}

// Delete removes url's cached page and its embeddings (spec §4.11
// deleteCachedWebPage).
func (c *Cache) Delete(ctx context.Context, url string) error {
	return c.s.DeleteCachedWebPage(ctx, url)
}

// Cleanup purges every page past its expiry and reports how many were
// removed (spec §4.11 cleanupExpiredPages).
func (c *Cache) Cleanup(ctx context.Context) (int, error) {
	return c.s.CleanupExpiredPages(ctx)
}

// PutEmbeddings persists embeddings for url's cached chunks.
func (c *Cache) PutEmbeddings(ctx context.Context, embs []store.CachedWebEmbedding) ([]int64, error) {
	return c.s.InsertWebEmbeddings(ctx, embs)
}

// Embeddings returns every stored embedding for url's cached chunks.
func (c *Cache) Embeddings(ctx context.Context, url string) ([]store.CachedWebEmbedding, error) {
	return c.s.GetWebEmbeddings(ctx, url)
}
