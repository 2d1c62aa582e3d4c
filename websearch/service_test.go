package websearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name      string
	results   []SearchResult
	err       error
	available bool
	calls     int
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return f.available }
func (f *fakeProvider) Search(ctx context.Context, query string, opts Options) ([]SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestServiceSearchMergesProviders(t *testing.T) {
	a := &fakeProvider{name: "a", available: true, results: []SearchResult{{Title: "A1", URL: "https://a.example/1", Snippet: "short"}}}
	b := &fakeProvider{name: "b", available: true, results: []SearchResult{{Title: "B1", URL: "https://b.example/1", Snippet: "also short"}}}
	s := NewService([]Provider{a, b})
	defer s.Close()

	results, err := s.Search(context.Background(), "query", Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestServiceSearchSkipsFailingProvider(t *testing.T) {
	good := &fakeProvider{name: "good", available: true, results: []SearchResult{{Title: "ok", URL: "https://ok.example"}}}
	bad := &fakeProvider{name: "bad", available: true, err: errors.New("boom")}
	s := NewService([]Provider{good, bad})
	defer s.Close()

	results, err := s.Search(context.Background(), "query", Options{Timeout: time.Second})
	require.NoError(t, err, "Search should not fail on a per-provider error")
	assert.Len(t, results, 1)
}

func TestServiceSearchSkipsUnavailableProvider(t *testing.T) {
	p := &fakeProvider{name: "p", available: false, results: []SearchResult{{Title: "x", URL: "https://x.example"}}}
	s := NewService([]Provider{p})
	defer s.Close()

	results, err := s.Search(context.Background(), "query", Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Empty(t, results, "expected no results from unavailable provider")
	assert.Equal(t, 0, p.calls, "unavailable provider should not be called")
}

func TestServiceSearchRestrictsToSources(t *testing.T) {
	a := &fakeProvider{name: "a", available: true, results: []SearchResult{{Title: "A", URL: "https://a.example"}}}
	b := &fakeProvider{name: "b", available: true, results: []SearchResult{{Title: "B", URL: "https://b.example"}}}
	s := NewService([]Provider{a, b})
	defer s.Close()

	results, err := s.Search(context.Background(), "query", Options{Timeout: time.Second, Sources: []string{"a"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Title)
	assert.Equal(t, 0, b.calls, "provider b should have been excluded by Sources filter")
}

func TestServiceSearchCachesResults(t *testing.T) {
	p := &fakeProvider{name: "p", available: true, results: []SearchResult{{Title: "x", URL: "https://x.example"}}}
	s := NewService([]Provider{p})
	defer s.Close()

	ctx := context.Background()
	_, err := s.Search(ctx, "  Query  ", Options{Timeout: time.Second})
	require.NoError(t, err)
	_, err = s.Search(ctx, "query", Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls, "expected cache hit on normalized query")
}

func TestServiceSearchBypassesCacheWithZeroTimeout(t *testing.T) {
	p := &fakeProvider{name: "p", available: true, results: []SearchResult{{Title: "x", URL: "https://x.example"}}}
	s := NewService([]Provider{p})
	defer s.Close()

	ctx := context.Background()
	_, err := s.Search(ctx, "query", Options{})
	require.NoError(t, err)
	_, err = s.Search(ctx, "query", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls, "expected no caching with timeout=0")
}

func TestDedupeKeepsLongerSnippet(t *testing.T) {
	results := []SearchResult{
		{URL: "https://example.com/page?b=2&a=1", Snippet: "short"},
		{URL: "https://example.com/page?a=1&b=2#frag", Snippet: "a much longer and more informative snippet"},
	}
	out := dedupe(results)
	require.Len(t, out, 1)
	assert.Equal(t, "a much longer and more informative snippet", out[0].Snippet)
}

func TestNormalizeURLSortsParamsAndStripsFragment(t *testing.T) {
	a := normalizeURL("https://example.com/page?b=2&a=1#section")
	b := normalizeURL("https://example.com/page?a=1&b=2")
	assert.Equal(t, b, a)
}

func TestServiceSearchSkipsProviderOverRateLimit(t *testing.T) {
	p := &fakeProvider{name: "p", available: true, results: []SearchResult{{Title: "x", URL: "https://x.example"}}}
	s := NewService([]Provider{p})
	defer s.Close()

	// Burst capacity is rateLimitBurst; bypass the cache each call
	// (distinct queries) so every call actually reaches the provider
	// fan-out and exercises the limiter.
	for i := 0; i < rateLimitBurst; i++ {
		_, err := s.Search(context.Background(), queryFor(i), Options{})
		require.NoErrorf(t, err, "Search %d", i)
	}
	require.Equal(t, rateLimitBurst, p.calls, "expected calls to exhaust burst")

	_, err := s.Search(context.Background(), queryFor(rateLimitBurst), Options{})
	require.NoError(t, err)
	assert.Equal(t, rateLimitBurst, p.calls, "expected the over-limit call to be skipped")
}

func queryFor(i int) string {
	return "distinct query " + string(rune('a'+i))
}
