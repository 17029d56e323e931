package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// hostMode records how a leading :host compound was rewritten.
type hostMode int

const (
	hostNone hostMode = iota
	hostDescendant
	hostChild
	hostBare
)

var selectorCache sync.Map // string -> cascadia.SelectorGroup

func compile(sel string) (cascadia.SelectorGroup, error) {
	if v, ok := selectorCache.Load(sel); ok {
		return v.(cascadia.SelectorGroup), nil
	}
	g, err := cascadia.ParseGroup(sel)
	if err != nil {
		return nil, fmt.Errorf("dom: selector %q: %w", sel, err)
	}
	selectorCache.Store(sel, g)
	return g, nil
}

// splitHost strips a leading ":host" compound. The shadow host is not part
// of its shadow tree, so ":host X" is evaluated as X inside the tree and
// ":host > X" as X directly under the tree root.
func splitHost(sel string) (string, hostMode) {
	s := strings.TrimSpace(sel)
	if !strings.HasPrefix(s, ":host") {
		return s, hostNone
	}
	rest := s[len(":host"):]
	if rest == "" {
		return "", hostBare
	}
	switch rest[0] {
	case ' ', '\t', '\n':
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, ">") {
			return strings.TrimSpace(rest[1:]), hostChild
		}
		return rest, hostDescendant
	case '>':
		return strings.TrimSpace(rest[1:]), hostChild
	}
	// :host(...) and :host-context(...) are left to the selector engine.
	return s, hostNone
}

// QueryAll returns the elements under scope (excluding scope) matching sel,
// in document order.
func (d *Document) QueryAll(scope *html.Node, sel string) ([]*html.Node, error) {
	if scope == nil {
		return nil, nil
	}
	rest, mode := splitHost(sel)
	if mode == hostBare {
		return nil, nil
	}
	if rest == "" {
		return nil, fmt.Errorf("dom: empty selector")
	}
	g, err := compile(rest)
	if err != nil {
		return nil, err
	}
	nodes := cascadia.QueryAll(scope, g)
	if mode == hostChild {
		root := TreeRoot(scope)
		kept := nodes[:0]
		for _, n := range nodes {
			if n.Parent == root {
				kept = append(kept, n)
			}
		}
		nodes = kept
	}
	return nodes, nil
}

// Query returns the first match of sel under scope, or nil.
func (d *Document) Query(scope *html.Node, sel string) (*html.Node, error) {
	nodes, err := d.QueryAll(scope, sel)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Matches reports whether el matches sel.
func (d *Document) Matches(el *html.Node, sel string) (bool, error) {
	if el == nil || el.Type != html.ElementNode {
		return false, nil
	}
	rest, mode := splitHost(sel)
	if mode == hostBare {
		return false, nil
	}
	g, err := compile(rest)
	if err != nil {
		return false, err
	}
	if !g.Match(el) {
		return false, nil
	}
	if mode == hostChild && el.Parent != TreeRoot(el) {
		return false, nil
	}
	return true, nil
}

// Closest returns el or its nearest ancestor within the same tree matching
// sel, or nil.
func (d *Document) Closest(el *html.Node, sel string) (*html.Node, error) {
	for n := el; n != nil && n.Type == html.ElementNode; n = n.Parent {
		ok, err := d.Matches(n, sel)
		if err != nil {
			return nil, err
		}
		if ok {
			return n, nil
		}
	}
	return nil, nil
}

// ElementByID looks id up in the tree containing ctx first, then in the
// document tree.
func (d *Document) ElementByID(ctx *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	byID := func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		v, ok := Attr(n, "id")
		return ok && v == id
	}
	if ctx != nil {
		if root := TreeRoot(ctx); root != d.root {
			if n := findFirst(root, byID); n != nil {
				return n
			}
		}
	}
	return findFirst(d.root, byID)
}
