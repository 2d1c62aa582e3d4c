package extractor

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// sanitizePolicy is a defense-in-depth pass applied before the DOM walk:
// it guarantees scripts, styles and inline event handlers never survive
// into the parsed tree, on top of the selector-based removal pass that
// implements spec §4.8's literal block list. Structural and
// presentation attributes (class, id, style, role, table layout
// attributes) are kept globally since the main-content scoring
// heuristic and table renderer both read them.
var sanitizePolicy = newSanitizePolicy()

func newSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"html", "head", "body", "title", "meta", "link",
		"div", "span", "section", "article", "main", "nav", "header", "footer", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "p", "a", "ul", "ol", "li",
		"blockquote", "pre", "br", "hr",
		"table", "thead", "tbody", "tr", "th", "td", "caption",
		"form", "button", "label", "input",
		"svg", "canvas", "img", "figure", "figcaption", "time",
		"strong", "em", "b", "i", "small", "code",
	)
	p.AllowAttrs("class", "id", "style", "hidden", "role", "name", "content", "property", "width", "colspan", "rowspan").Globally()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemes("http", "https", "mailto")
	return p
}

// sanitizeSubtree re-renders the chosen main-content node through the
// bluemonday policy and re-parses the result, as a defense-in-depth
// guard against anything the selector-based removal pass above missed:
// even a main-content element selected by the scoring heuristic can
// only ever reach walkText free of scripts, styles and event handlers.
func sanitizeSubtree(n *html.Node) (*html.Node, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return nil, err
	}
	sanitized := sanitizePolicy.Sanitize(b.String())
	return html.Parse(strings.NewReader(sanitized))
}
