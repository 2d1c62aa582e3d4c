// Package websearch implements the local provider fan-out that backs
// web-grounded queries: Wikipedia and DuckDuckGo-lite over a configured
// proxy, plus an optional browser-extension bridge, coordinated by
// Service with caching, rate limiting and deduplication (spec §4.7).
package websearch

import (
	"context"
	"time"
)

// SearchResult is one hit returned by a Provider.
type SearchResult struct {
	Title     string
	Snippet   string
	URL       string
	Source    string
	FetchedAt time.Time

	// Content, when non-empty, is the page's already-extracted full text
	// (only the browser-extension provider populates this), letting the
	// orchestrator skip a separate fetch+extract round (spec §4.9 step 5a).
	Content string
}

// Options configures a single Search call.
type Options struct {
	MaxResults int
	Sources    []string // provider names to restrict to; empty means all
	Timeout    time.Duration
	Language   string
}

// Provider is a single search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]SearchResult, error)
	IsAvailable() bool
}
