package extractor

import (
	"strings"

	"golang.org/x/net/html"
)

var headingTags = map[string]bool{"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "li": true,
	"ul": true, "ol": true, "blockquote": true, "pre": true, "br": true,
	"tr": true, "table": true,
}

// walkText renders root's text content, forcing blank lines around
// headings and newlines at other block boundaries, and emitting tables
// separately in the [TABLA]...[FIN TABLA] bracketed format (spec §4.8).
func walkText(root *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "table":
				b.WriteString("\n")
				b.WriteString(renderTable(n))
				b.WriteString("\n")
				return // table contents are rendered wholesale, don't descend
			case headingTags[n.Data]:
				b.WriteString("\n\n")
				b.WriteString(strings.TrimSpace(textContent(n)))
				b.WriteString("\n\n")
				return
			case blockTags[n.Data]:
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(root)
	return b.String()
}

// renderTable formats a <table> as "Column1 | Column2 | …" rows
// bracketed by [TABLA]...[FIN TABLA] (spec §4.8).
func renderTable(table *html.Node) string {
	var rows []string
	var walkRow func(*html.Node)
	walkRow = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, strings.TrimSpace(textContent(c)))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, strings.Join(cells, " | "))
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRow(c)
		}
	}
	walkRow(table)

	var b strings.Builder
	b.WriteString("[TABLA]\n")
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteString("\n[FIN TABLA]")
	return b.String()
}

// collapseWhitespace squeezes runs of horizontal whitespace and caps
// consecutive blank lines at one (i.e. at most two consecutive
// newlines) (spec §4.8).
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	collapsed := strings.Join(lines, "\n")

	for strings.Contains(collapsed, "\n\n\n") {
		collapsed = strings.ReplaceAll(collapsed, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(collapsed)
}

// truncateWords caps s at maxWords words, appending "…" when cut.
func truncateWords(s string, maxWords int) string {
	if maxWords <= 0 {
		return s
	}
	fields := strings.Fields(s)
	if len(fields) <= maxWords {
		return s
	}
	return strings.Join(fields[:maxWords], " ") + "…"
}
