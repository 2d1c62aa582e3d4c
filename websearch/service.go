package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	cacheTTL        = 5 * time.Minute
	rateLimitBurst  = 10
	rateLimitWindow = 60 * time.Second
)

type cacheEntry struct {
	results   []SearchResult
	expiresAt time.Time
}

// Service coordinates a set of Providers: cache, parallel fan-out,
// per-provider rate limiting, and cross-provider deduplication (spec
// §4.7).
type Service struct {
	providers []Provider

	mu    sync.Mutex
	cache map[string]cacheEntry

	limiters map[string]*rate.Limiter

	stopSweep chan struct{}
}

// NewService builds a Service over providers and starts the periodic
// cache sweep. Call Close to stop the sweep goroutine.
func NewService(providers []Provider) *Service {
	s := &Service{
		providers: providers,
		cache:     make(map[string]cacheEntry),
		limiters:  make(map[string]*rate.Limiter),
		stopSweep: make(chan struct{}),
	}
	for _, p := range providers {
		s.limiters[p.Name()] = rate.NewLimiter(rate.Every(rateLimitWindow/rateLimitBurst), rateLimitBurst)
	}
	go s.sweepLoop()
	return s
}

// Close stops the background cache sweep.
func (s *Service) Close() {
	close(s.stopSweep)
}

func (s *Service) sweepLoop() {
	ticker := time.NewTicker(cacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Service) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.cache {
		if now.After(v.expiresAt) {
			delete(s.cache, k)
		}
	}
}

// Search fans the query out to every available provider (optionally
// restricted to opts.Sources), merges and deduplicates the results, and
// caches them keyed by the normalized query. opts.Timeout == 0 bypasses
// the cache entirely (spec §4.7).
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]SearchResult, error) {
	key := cacheKey(query)
	bypassCache := opts.Timeout == 0

	if !bypassCache {
		if cached, ok := s.lookupCache(key); ok {
			return cached, nil
		}
	}

	active := s.selectProviders(opts.Sources)

	g, gctx := errgroup.WithContext(ctx)
	resultsPerProvider := make([][]SearchResult, len(active))
	for i, p := range active {
		i, p := i, p
		g.Go(func() error {
			if !p.IsAvailable() {
				return nil
			}
			limiter := s.limiters[p.Name()]
			if limiter != nil && !limiter.Allow() {
				// Rate limit exceeded: skip this provider for this call
				// rather than queuing (spec §4.7).
				return nil
			}
			res, err := p.Search(gctx, query, opts)
			if err != nil {
				// Per-provider failure is logged and skipped, never
				// fatal to the aggregate call.
				slog.Warn("websearch: provider search failed", "provider", p.Name(), "error", err)
				return nil
			}
			resultsPerProvider[i] = res
			return nil
		})
	}
	// errgroup.Group.Wait only ever returns nil here since no goroutine
	// returns a non-nil error; provider failures are swallowed above.
	_ = g.Wait()

	var merged []SearchResult
	for _, r := range resultsPerProvider {
		merged = append(merged, r...)
	}

	deduped := dedupe(merged)
	if opts.MaxResults > 0 && len(deduped) > opts.MaxResults {
		deduped = deduped[:opts.MaxResults]
	}

	if !bypassCache {
		s.storeCache(key, deduped)
	}
	return deduped, nil
}

func (s *Service) selectProviders(sources []string) []Provider {
	if len(sources) == 0 {
		return s.providers
	}
	allowed := make(map[string]bool, len(sources))
	for _, src := range sources {
		allowed[src] = true
	}
	var filtered []Provider
	for _, p := range s.providers {
		if allowed[p.Name()] {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func (s *Service) lookupCache(key string) ([]SearchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.results, true
}

func (s *Service) storeCache(key string, results []SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{results: results, expiresAt: time.Now().Add(cacheTTL)}
}

// cacheKey hashes the trimmed, lower-cased query (spec §4.7).
func cacheKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// dedupe collapses results whose normalizeUrl forms collide, keeping
// the one with the longer snippet (spec §4.7).
func dedupe(results []SearchResult) []SearchResult {
	best := make(map[string]SearchResult)
	var order []string
	for _, r := range results {
		key := normalizeURL(r.URL)
		existing, ok := best[key]
		if !ok {
			best[key] = r
			order = append(order, key)
			continue
		}
		if len(r.Snippet) > len(existing.Snippet) {
			best[key] = r
		}
	}
	out := make([]SearchResult, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// normalizeURL strips the fragment and alphabetically sorts query
// params, for stable dedup keys (spec §4.7).
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if u.RawQuery != "" {
		params := strings.Split(u.RawQuery, "&")
		sort.Strings(params)
		u.RawQuery = strings.Join(params, "&")
	}
	return u.String()
}
