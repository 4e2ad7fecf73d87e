package capture

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SanitizeHTML parses a document or fragment and drops script-like elements,
// event handler attributes and javascript: URLs before it is rendered.
func SanitizeHTML(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse dom region: %w", err)
	}
	scrub(doc)
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("render dom region: %w", err)
	}
	return buf.String(), nil
}

func scrub(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && blocked(c.DataAtom) {
			n.RemoveChild(c)
		} else {
			if c.Type == html.ElementNode {
				c.Attr = safeAttrs(c.Attr)
			}
			scrub(c)
		}
		c = next
	}
}

func blocked(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Object, atom.Embed, atom.Base:
		return true
	}
	return false
}

func safeAttrs(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if (key == "href" || key == "src" || key == "action" || key == "formaction") &&
			strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
			continue
		}
		out = append(out, a)
	}
	return out
}
