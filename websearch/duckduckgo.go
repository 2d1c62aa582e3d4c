package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DuckDuckGoProvider scrapes the lite HTML endpoint through a configured
// proxy and unwraps DuckDuckGo's redirect-wrapper links (spec §4.7).
type DuckDuckGoProvider struct {
	proxyURL string
	client   *http.Client
}

func NewDuckDuckGoProvider(proxyURL string) *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		proxyURL: proxyURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *DuckDuckGoProvider) Name() string { return "duckduckgo" }

func (p *DuckDuckGoProvider) IsAvailable() bool { return true }

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, opts Options) ([]SearchResult, error) {
	target := "https://lite.duckduckgo.com/lite/?q=" + url.QueryEscape(query)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, proxied(p.proxyURL, target), nil)
	if err != nil {
		return nil, fmt.Errorf("building duckduckgo request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo request: unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing duckduckgo html: %w", err)
	}

	results := parseLiteRows(doc)

	limit := opts.MaxResults
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	now := time.Now()
	for i := range results {
		results[i].Source = p.Name()
		results[i].FetchedAt = now
	}
	return results, nil
}

// parseLiteRows walks the lite endpoint's result table: each hit is a
// row with an anchor (title + href) followed by a row holding the
// snippet text in a `.result-snippet` cell.
func parseLiteRows(doc *html.Node) []SearchResult {
	var results []SearchResult
	var pending *SearchResult

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result-link") {
			href := attr(n, "href")
			title := strings.TrimSpace(textContent(n))
			if href != "" {
				if pending != nil {
					results = append(results, *pending)
				}
				pending = &SearchResult{Title: title, URL: unwrapRedirect(href)}
			}
		}
		if n.Type == html.ElementNode && hasClass(n, "result-snippet") && pending != nil {
			pending.Snippet = strings.TrimSpace(textContent(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if pending != nil {
		results = append(results, *pending)
	}
	return results
}

// unwrapRedirect recovers the real destination from DuckDuckGo's
// `//duckduckgo.com/l/?uddg=…` redirect wrapper, or returns href
// unchanged if it isn't one.
func unwrapRedirect(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
