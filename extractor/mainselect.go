package extractor

import (
	"strings"

	"golang.org/x/net/html"
)

// priorityMainSelectors is tried, in order, before falling back to
// scoring (spec §4.8).
var priorityMainSelectors = []string{"main", "article", "[role=main]", ".main-content"}

// contentIndicatorClasses/noiseIndicatorClasses feed the scoring bonus
// and penalty terms (spec §4.8).
var contentIndicatorClasses = []string{"content", "article", "post", "entry", "body", "main"}
var noiseIndicatorClasses = []string{"comment", "related", "share", "social", "widget", "promo"}

const minContentWords = 50

// findMainContent locates the element most likely to hold the article
// body: first by priority selector, else by scoring every
// div/section/article/main descendant (spec §4.8).
func findMainContent(root *html.Node) *html.Node {
	for _, raw := range priorityMainSelectors {
		sel := parseSelector(raw)
		if n := findFirst(root, sel); n != nil && wordCount(textContent(n)) >= minContentWords {
			return n
		}
	}

	var best *html.Node
	bestScore := -1.0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "div", "section", "article", "main":
				if score := scoreElement(n); score > bestScore {
					words := wordCount(textContent(n))
					if words >= minContentWords {
						bestScore = score
						best = n
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if best != nil {
		return best
	}
	return root
}

func findFirst(root *html.Node, sel selector) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if sel.matches(n) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// scoreElement implements spec §4.8's weighted heuristic.
func scoreElement(n *html.Node) float64 {
	text := textContent(n)
	words := wordCount(text)
	score := float64(words)

	switch n.Data {
	case "article":
		score *= 1.5
	case "main":
		score *= 1.4
	case "section":
		score *= 1.1
	}

	classAndID := strings.ToLower(nodeAttr(n, "class") + " " + nodeAttr(n, "id"))
	for _, ind := range contentIndicatorClasses {
		if strings.Contains(classAndID, ind) {
			score *= 1.3
			break
		}
	}
	for _, ind := range noiseIndicatorClasses {
		if strings.Contains(classAndID, ind) {
			score *= 0.2
			break
		}
	}

	linkDensity := linkTextDensity(n)
	switch {
	case linkDensity > 0.5:
		score *= 0.3
	case linkDensity > 0.3:
		score *= 0.7
	}

	htmlLen := renderedLength(n)
	if htmlLen > 0 {
		ratio := float64(len(text)) / float64(htmlLen)
		if ratio > 0.3 {
			score *= 1.2
		}
	}

	if paragraphCount(n) > 3 {
		score *= 1.1
	}

	tables := countTag(n, "table")
	if tables >= 1 && tables <= 4 {
		score *= 1.15
	}

	if width := pixelWidth(nodeAttr(n, "style")); width > 0 {
		switch {
		case width < 300:
			score *= 0.4
		case width < 500:
			score *= 0.8
		}
	}

	return score
}

func linkTextDensity(n *html.Node) float64 {
	total := len(textContent(n))
	if total == 0 {
		return 0
	}
	var linkChars int
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			linkChars += len(textContent(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return float64(linkChars) / float64(total)
}

func paragraphCount(n *html.Node) int {
	return countTag(n, "p")
}

func countTag(n *html.Node, tag string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return count
}

// renderedLength approximates the element's serialized HTML length by
// summing tag-name bytes and text length; used only for the text/HTML
// ratio bonus, so an exact render isn't necessary.
func renderedLength(n *html.Node) int {
	total := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			total += len(n.Data) + 5 // "<tag>" + "</tag>" overhead approximation
		}
		if n.Type == html.TextNode {
			total += len(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return total
}

func pixelWidth(style string) int {
	idx := strings.Index(style, "width")
	if idx < 0 {
		return 0
	}
	rest := style[idx:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return 0
	}
	rest = rest[colon+1:]
	if end := strings.Index(rest, ";"); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "px"))
	n := 0
	for _, r := range rest {
		if r < '0' || r > '9' {
			if n == 0 {
				return 0
			}
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
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

func wordCount(s string) int {
	return len(strings.Fields(s))
}
