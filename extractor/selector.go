package extractor

import (
	"strings"

	"golang.org/x/net/html"
)

// selector is a minimal CSS-selector subset sufficient for the default
// noise block list and caller-supplied overrides: a bare tag name
// ("script"), a class selector (".ads"), an id selector ("#cookie"), or
// an attribute selector ("[role=complementary]").
type selector struct {
	tag   string
	class string
	id    string
	attr  string
	value string
}

func parseSelector(raw string) selector {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "."):
		return selector{class: raw[1:]}
	case strings.HasPrefix(raw, "#"):
		return selector{id: raw[1:]}
	case strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"):
		body := raw[1 : len(raw)-1]
		parts := strings.SplitN(body, "=", 2)
		if len(parts) == 2 {
			return selector{attr: strings.TrimSpace(parts[0]), value: strings.Trim(strings.TrimSpace(parts[1]), `"'`)}
		}
		return selector{attr: strings.TrimSpace(body)}
	default:
		return selector{tag: raw}
	}
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" {
		return n.Data == s.tag
	}
	if s.class != "" {
		return hasClass(n, s.class)
	}
	if s.id != "" {
		return nodeAttr(n, "id") == s.id
	}
	if s.attr != "" {
		v, ok := nodeAttrOK(n, s.attr)
		if !ok {
			return false
		}
		if s.value == "" {
			return true
		}
		return v == s.value
	}
	return false
}

// defaultRemoveSelectors is the fixed noise block list (spec §4.8).
var defaultRemoveSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside",
	".ad", ".ads", ".advertisement", ".sidebar",
	".cookie", ".cookie-banner", ".popup", ".modal",
	"svg", "canvas", "form", "button",
}

// removeMatching deletes every descendant of root matched by any of
// selectors (and, separately, comment nodes and inline event handlers
// happen in their own passes).
func removeMatching(root *html.Node, selectors []selector) {
	var toRemove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for _, sel := range selectors {
			if sel.matches(n) {
				toRemove = append(toRemove, n)
				return // don't descend into a removed subtree
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// removeHidden strips elements carrying the `hidden` attribute or an
// inline `display:none` style (spec §4.8).
func removeHidden(root *html.Node) {
	var toRemove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, ok := nodeAttrOK(n, "hidden"); ok {
				toRemove = append(toRemove, n)
				return
			}
			style := nodeAttr(n, "style")
			if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
				toRemove = append(toRemove, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// removeEventHandlers strips any `on*` attribute (onclick, onload, …)
// so no inline script survives into extracted markup (spec §4.8: scripts
// never execute).
func removeEventHandlers(root *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && len(n.Attr) > 0 {
			kept := n.Attr[:0]
			for _, a := range n.Attr {
				if !strings.HasPrefix(strings.ToLower(a.Key), "on") {
					kept = append(kept, a)
				}
			}
			n.Attr = kept
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// removeComments deletes HTML comment nodes.
func removeComments(root *html.Node) {
	var toRemove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode {
			toRemove = append(toRemove, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func nodeAttr(n *html.Node, key string) string {
	v, _ := nodeAttrOK(n, key)
	return v
}

func nodeAttrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(nodeAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
