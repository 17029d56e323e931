package dom

import (
	"fmt"

	"golang.org/x/net/html"
)

// XPath returns a location path for n. Siblings sharing a tag are indexed
// from 1, and a shadow boundary appears as a "/shadow-root" step below its
// host.
func (d *Document) XPath(n *html.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case html.DocumentNode:
		if host := d.Host(n); host != nil {
			return d.XPath(host) + "/shadow-root"
		}
		return ""
	case html.TextNode:
		return d.XPath(n.Parent) + "/text()"
	case html.CommentNode:
		return d.XPath(n.Parent) + "/comment()"
	case html.ElementNode:
	default:
		return d.XPath(n.Parent)
	}

	parentPath := d.XPath(n.Parent)
	if n.Parent == nil {
		return "/" + n.Data
	}

	idx, total := 0, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode || s.Data != n.Data {
			continue
		}
		total++
		if s == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, n.Data, idx)
	}
	return parentPath + "/" + n.Data
}
