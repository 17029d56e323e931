package dom

import (
	"errors"
	"weak"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrShadowAttached is returned when a host already carries a shadow root.
var ErrShadowAttached = errors.New("dom: shadow root already attached")

// ShadowMode is the encapsulation mode of a shadow root.
type ShadowMode string

const (
	ShadowOpen   ShadowMode = "open"
	ShadowClosed ShadowMode = "closed"
)

// ShadowRoot is an encapsulated tree attached to a host element. Root is a
// detached html.DocumentNode, so selectors and ancestor walks never leave
// the shadow tree on their own.
type ShadowRoot struct {
	Root *html.Node
	Mode ShadowMode
}

// AttachShadow creates an empty shadow root on host.
func (d *Document) AttachShadow(host *html.Node, mode ShadowMode) (*ShadowRoot, error) {
	if host == nil || host.Type != html.ElementNode {
		return nil, ErrNotElement
	}
	if _, ok := d.shadows.Get(host); ok {
		return nil, ErrShadowAttached
	}
	if mode != ShadowClosed {
		mode = ShadowOpen
	}
	sr := &ShadowRoot{Root: &html.Node{Type: html.DocumentNode}, Mode: mode}
	d.shadows.Put(host, sr)
	d.hosts.Put(sr.Root, weak.Make(host))
	d.touch()
	return sr, nil
}

// DetachShadow removes the shadow root of host, if any.
func (d *Document) DetachShadow(host *html.Node) {
	sr, ok := d.shadows.Get(host)
	if !ok {
		return
	}
	d.shadows.Delete(host)
	d.hosts.Delete(sr.Root)
	d.touch()
}

// ShadowRoot returns the shadow root of host regardless of its mode. This is
// the privileged accessor; page-level code only sees OpenShadowRoot.
func (d *Document) ShadowRoot(host *html.Node) *ShadowRoot {
	sr, ok := d.shadows.Get(host)
	if !ok {
		return nil
	}
	return sr
}

// OpenShadowRoot returns the shadow root of host only if it is open.
func (d *Document) OpenShadowRoot(host *html.Node) *ShadowRoot {
	sr := d.ShadowRoot(host)
	if sr == nil || sr.Mode != ShadowOpen {
		return nil
	}
	return sr
}

// Host returns the host element of a shadow tree root, or nil when root is
// not a shadow root.
func (d *Document) Host(root *html.Node) *html.Node {
	wp, ok := d.hosts.Get(root)
	if !ok {
		return nil
	}
	return wp.Value()
}

// HostOf returns the shadow host of the tree containing n, or nil when n
// lives in the document tree.
func (d *Document) HostOf(n *html.Node) *html.Node {
	return d.Host(TreeRoot(n))
}

// promoteDeclarativeShadows attaches <template shadowrootmode> children of
// elements under n as shadow roots, the way an HTML parser does.
func (d *Document) promoteDeclarativeShadows(n *html.Node) {
	if n == nil {
		return
	}
	var tpls []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Template && n.Type == html.ElementNode {
				if _, ok := Attr(c, "shadowrootmode"); ok {
					tpls = append(tpls, c)
					continue
				}
			}
			walk(c)
		}
	}
	walk(n)

	for _, tpl := range tpls {
		host := tpl.Parent
		mode, _ := Attr(tpl, "shadowrootmode")
		sr, err := d.AttachShadow(host, ShadowMode(mode))
		if err != nil {
			continue
		}
		host.RemoveChild(tpl)
		// x/net/html keeps template contents as regular children.
		for c := tpl.FirstChild; c != nil; {
			next := c.NextSibling
			tpl.RemoveChild(c)
			sr.Root.AppendChild(c)
			c = next
		}
		d.promoteDeclarativeShadows(sr.Root)
	}
}
