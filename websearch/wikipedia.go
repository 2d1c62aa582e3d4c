package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const wikipediaMaxResults = 10

// WikipediaProvider queries the MediaWiki OpenSearch endpoint through a
// single configured HTTP proxy (spec §4.7).
type WikipediaProvider struct {
	proxyURL string
	client   *http.Client
}

// NewWikipediaProvider builds a provider that routes requests through
// proxyURL (a CORS-capable fetch proxy taking a `url` query parameter).
// An empty proxyURL hits Wikipedia directly.
func NewWikipediaProvider(proxyURL string) *WikipediaProvider {
	return &WikipediaProvider{
		proxyURL: proxyURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *WikipediaProvider) Name() string { return "wikipedia" }

func (p *WikipediaProvider) IsAvailable() bool { return true }

func (p *WikipediaProvider) Search(ctx context.Context, query string, opts Options) ([]SearchResult, error) {
	limit := opts.MaxResults
	if limit <= 0 || limit > wikipediaMaxResults {
		limit = wikipediaMaxResults
	}

	target := fmt.Sprintf(
		"https://en.wikipedia.org/w/api.php?action=opensearch&format=json&search=%s&limit=%d",
		url.QueryEscape(query), limit,
	)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, proxied(p.proxyURL, target), nil)
	if err != nil {
		return nil, fmt.Errorf("building wikipedia request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia request: unexpected status %d", resp.StatusCode)
	}

	// OpenSearch returns a 4-tuple: [query, titles, descriptions, urls].
	var tuple [4]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&tuple); err != nil {
		return nil, fmt.Errorf("decoding wikipedia response: %w", err)
	}

	var titles, descriptions, urls []string
	if err := json.Unmarshal(tuple[1], &titles); err != nil {
		return nil, fmt.Errorf("decoding wikipedia titles: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &descriptions); err != nil {
		return nil, fmt.Errorf("decoding wikipedia descriptions: %w", err)
	}
	if err := json.Unmarshal(tuple[3], &urls); err != nil {
		return nil, fmt.Errorf("decoding wikipedia urls: %w", err)
	}

	n := len(titles)
	if len(urls) < n {
		n = len(urls)
	}

	now := time.Now()
	results := make([]SearchResult, 0, n)
	for i := 0; i < n; i++ {
		snippet := ""
		if i < len(descriptions) {
			snippet = descriptions[i]
		}
		results = append(results, SearchResult{
			Title:     titles[i],
			Snippet:   snippet,
			URL:       urls[i],
			Source:    p.Name(),
			FetchedAt: now,
		})
	}
	return results, nil
}

// proxied wraps target behind proxyURL's `url` query parameter, or
// returns target unchanged when no proxy is configured.
func proxied(proxyURL, target string) string {
	if proxyURL == "" {
		return target
	}
	return proxyURL + "?url=" + url.QueryEscape(target)
}
