package dom

import "golang.org/x/net/html"

// Host is the page capability the filtering core runs against.
type Host interface {
	Root() *html.Node
	QueryAll(scope *html.Node, sel string) ([]*html.Node, error)
	Closest(el *html.Node, sel string) (*html.Node, error)
	ShadowRoot(host *html.Node) *ShadowRoot
	Host(root *html.Node) *html.Node
	ElementByID(ctx *html.Node, id string) *html.Node
	ComputedStyle(el *html.Node, pseudo string) (Style, error)
	BoundingRect(n *html.Node) (Rect, error)
	InlineStyle(el *html.Node) *InlineStyle
	NewMutationObserver(cb MutationCallback) *MutationObserver
	Post(task func())
}

var _ Host = (*Document)(nil)
