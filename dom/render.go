package dom

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Render writes the document as HTML. Shadow roots are serialised as
// declarative <template shadowrootmode> children of their hosts, so the
// output parses back into the same composed tree.
func (d *Document) Render(w io.Writer) error {
	clone := d.cloneComposed(d.root)
	if err := html.Render(w, clone); err != nil {
		return fmt.Errorf("dom: render: %w", err)
	}
	return nil
}

// String renders the document, returning "" on failure.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// OuterHTML renders a single node with its shadow roots.
func (d *Document) OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.cloneComposed(n)); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) cloneComposed(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if sr := d.ShadowRoot(n); sr != nil {
		tpl := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Template,
			Data:     "template",
			Attr:     []html.Attribute{{Key: "shadowrootmode", Val: string(sr.Mode)}},
		}
		for ch := sr.Root.FirstChild; ch != nil; ch = ch.NextSibling {
			tpl.AppendChild(d.cloneComposed(ch))
		}
		c.AppendChild(tpl)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(d.cloneComposed(ch))
	}
	return c
}
