package extractor

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// titleSuffixPattern trims a trailing "| Site Name", "• Site Name",
// "· Site Name" or " - Site Name" / " – Site Name" tail (spec §4.8).
var titleSuffixPattern = regexp.MustCompile(`\s*[|•·]\s*.*$|\s+[-–]\s+[^-–]*$`)

// Extract parses rawHTML, strips noise, locates the main content, and
// returns a normalized text rendering plus title and metadata (spec
// §4.8). Scripts never execute: this is a DOM walk, nothing is
// evaluated.
func Extract(rawHTML, pageURL string, opts Options) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	title := extractTitle(doc)
	meta := extractMetadata(doc)

	selectors := make([]selector, 0, len(defaultRemoveSelectors)+len(opts.ExtraRemoveSelectors))
	for _, s := range defaultRemoveSelectors {
		selectors = append(selectors, parseSelector(s))
	}
	for _, s := range opts.ExtraRemoveSelectors {
		selectors = append(selectors, parseSelector(s))
	}

	removeComments(doc)
	removeMatching(doc, selectors)
	removeHidden(doc)
	removeEventHandlers(doc)

	main, err := sanitizeSubtree(findMainContent(doc))
	if err != nil {
		return nil, err
	}

	text := collapseWhitespace(walkText(main))
	text = truncateWords(text, opts.MaxWords)

	return &Result{
		Text:        text,
		Title:       title,
		URL:         pageURL,
		ExtractedAt: time.Now(),
		WordCount:   wordCount(text),
		Metadata:    meta,
	}, nil
}

// extractTitle prefers a visible <h1>, then og:title, then twitter:title,
// then <title>, trimming a trailing site-name suffix (spec §4.8).
func extractTitle(doc *html.Node) string {
	var firstVisibleH1 func(*html.Node) *html.Node
	firstVisibleH1 = func(n *html.Node) *html.Node {
		style := strings.ReplaceAll(nodeAttr(n, "style"), " ", "")
		if _, hidden := nodeAttrOK(n, "hidden"); hidden || strings.Contains(style, "display:none") {
			return nil
		}
		if n.Type == html.ElementNode && n.Data == "h1" {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if h := firstVisibleH1(c); h != nil {
				return h
			}
		}
		return nil
	}
	if h1 := firstVisibleH1(doc); h1 != nil {
		if t := strings.TrimSpace(textContent(h1)); t != "" {
			return trimTitleSuffix(t)
		}
	}
	if t := metaContent(doc, "property", "og:title"); t != "" {
		return trimTitleSuffix(t)
	}
	if t := metaContent(doc, "name", "twitter:title"); t != "" {
		return trimTitleSuffix(t)
	}
	if titleNode := findFirst(doc, parseSelector("title")); titleNode != nil {
		if t := strings.TrimSpace(textContent(titleNode)); t != "" {
			return trimTitleSuffix(t)
		}
	}
	return ""
}

func trimTitleSuffix(title string) string {
	return strings.TrimSpace(titleSuffixPattern.ReplaceAllString(title, ""))
}

// extractMetadata reads author, published date and description from
// their canonical <meta> tags (spec §4.8).
func extractMetadata(doc *html.Node) Metadata {
	m := Metadata{}
	if v := metaContent(doc, "name", "author"); v != "" {
		m.Author = v
	} else if v := metaContent(doc, "property", "article:author"); v != "" {
		m.Author = v
	}

	if v := metaContent(doc, "property", "article:published_time"); v != "" {
		m.PublishedAt = v
	} else if v := metaContent(doc, "name", "date"); v != "" {
		m.PublishedAt = v
	}

	if v := metaContent(doc, "property", "og:description"); v != "" {
		m.Description = v
	} else if v := metaContent(doc, "name", "description"); v != "" {
		m.Description = v
	}
	return m
}

// metaContent finds <meta key="keyVal" content="…"> and returns its
// content attribute, or "" if absent.
func metaContent(doc *html.Node, key, keyVal string) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" && nodeAttr(n, key) == keyVal {
			found = nodeAttr(n, "content")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
