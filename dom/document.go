// Package dom is an in-memory, mutable document host for the filtering
// runtime. It wraps golang.org/x/net/html trees with the capabilities a page
// would normally provide: selector queries, open and closed shadow roots,
// inline style access, a computed-style cascade, element geometry and
// batched mutation observers.
//
// A Document is driven by a single event loop. Mutating methods, queries and
// Flush must not be called concurrently; Post is the only method safe to call
// from other goroutines, and is how asynchronous work re-enters the loop.
package dom

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"weak"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domshield/internal/weakset"
)

// ErrFlushLimit is returned by Flush when observers keep producing
// mutations past the configured number of delivery rounds.
var ErrFlushLimit = errors.New("dom: flush round limit exceeded")

// ErrNotElement is returned when an operation requires an element node.
var ErrNotElement = errors.New("dom: not an element")

// Document is a live document tree.
type Document struct {
	root   *html.Node
	logger *slog.Logger

	shadows *weakset.Map[html.Node, *ShadowRoot]
	hosts   *weakset.Map[html.Node, weak.Pointer[html.Node]]
	rects   *weakset.Map[html.Node, Rect]

	styler  Styler
	cascade *Cascade

	observers []*MutationObserver
	version   uint64

	taskMu sync.Mutex
	tasks  []func()
	wake   chan struct{}

	maxFlushRounds int
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used for swallowed callback failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithFlushLimit bounds the number of delivery rounds a single Flush may run.
// Default: 1000.
func WithFlushLimit(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.maxFlushRounds = n
		}
	}
}

// New creates an empty document containing <html><head></head><body></body></html>.
func New(opts ...Option) *Document {
	d, _ := Parse(strings.NewReader(""), opts...)
	return d
}

// Parse builds a Document from HTML source. Declarative shadow roots
// (<template shadowrootmode="open|closed">) are attached to their hosts.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return FromNode(root, opts...), nil
}

// ParseString is Parse for an in-memory string.
func ParseString(src string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(src), opts...)
}

// FromNode wraps an already built html.DocumentNode tree.
func FromNode(root *html.Node, opts ...Option) *Document {
	d := &Document{
		root:           root,
		logger:         slog.Default(),
		shadows:        weakset.NewMap[html.Node, *ShadowRoot](),
		hosts:          weakset.NewMap[html.Node, weak.Pointer[html.Node]](),
		rects:          weakset.NewMap[html.Node, Rect](),
		wake:           make(chan struct{}, 1),
		maxFlushRounds: 1000,
	}
	for _, o := range opts {
		o(d)
	}
	d.cascade = newCascade(d)
	d.styler = d.cascade
	d.promoteDeclarativeShadows(root)
	return d
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	return findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
}

// Version increases with every mutation.
func (d *Document) Version() uint64 { return d.version }

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// CreateText returns a detached text node.
func (d *Document) CreateText(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

// ParseFragment parses src in the context of el. Non-element contexts
// (document or shadow roots) parse as if inside <body>.
func (d *Document) ParseFragment(el *html.Node, src string) ([]*html.Node, error) {
	ctx := el
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}

// AppendChild inserts child as the last child of parent, detaching it from
// any previous parent first.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child before ref under parent. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) {
	if child.Parent != nil {
		d.Remove(child)
	}
	if ref != nil && ref.Parent != parent {
		ref = nil
	}
	parent.InsertBefore(child, ref)
	d.touch()
	d.queueRecord(MutationRecord{
		Type:            RecordChildList,
		Target:          parent,
		AddedNodes:      []*html.Node{child},
		PreviousSibling: child.PrevSibling,
		NextSibling:     child.NextSibling,
	})
	d.promoteDeclarativeShadows(child)
}

// Remove detaches n from its parent. Detached nodes are left untouched.
func (d *Document) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	prev, next := n.PrevSibling, n.NextSibling
	parent.RemoveChild(n)
	d.touch()
	d.queueRecord(MutationRecord{
		Type:            RecordChildList,
		Target:          parent,
		RemovedNodes:    []*html.Node{n},
		PreviousSibling: prev,
		NextSibling:     next,
	})
}

// ReplaceChildren removes every child of parent and appends nodes, emitting a
// single childList record.
func (d *Document) ReplaceChildren(parent *html.Node, nodes ...*html.Node) {
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		parent.AppendChild(n)
	}
	d.touch()
	if len(removed) == 0 && len(nodes) == 0 {
		return
	}
	d.queueRecord(MutationRecord{
		Type:         RecordChildList,
		Target:       parent,
		AddedNodes:   nodes,
		RemovedNodes: removed,
	})
	for _, n := range nodes {
		d.promoteDeclarativeShadows(n)
	}
}

// SetInnerHTML replaces the children of el with parsed src.
func (d *Document) SetInnerHTML(el *html.Node, src string) error {
	nodes, err := d.ParseFragment(el, src)
	if err != nil {
		return err
	}
	d.ReplaceChildren(el, nodes...)
	return nil
}

// SetTextContent replaces the children of el with a single text node.
func (d *Document) SetTextContent(el *html.Node, text string) {
	if text == "" {
		d.ReplaceChildren(el)
		return
	}
	d.ReplaceChildren(el, d.CreateText(text))
}

// SetText changes the data of a text or comment node.
func (d *Document) SetText(n *html.Node, data string) {
	if n.Type != html.TextNode && n.Type != html.CommentNode {
		return
	}
	old := n.Data
	if old == data {
		return
	}
	n.Data = data
	d.touch()
	d.queueRecord(MutationRecord{Type: RecordCharacterData, Target: n, OldValue: old})
}

// SetAttribute sets an attribute on el. Namespaced SVG attributes are
// addressed as "ns:key" (e.g. "xlink:href").
func (d *Document) SetAttribute(el *html.Node, key, val string) error {
	if el == nil || el.Type != html.ElementNode {
		return ErrNotElement
	}
	old, had := Attr(el, key)
	if had {
		for i := range el.Attr {
			if attrKey(el.Attr[i]) == key {
				el.Attr[i].Val = val
				break
			}
		}
	} else {
		ns, k := splitAttrKey(key)
		el.Attr = append(el.Attr, html.Attribute{Namespace: ns, Key: k, Val: val})
	}
	d.touch()
	rec := MutationRecord{Type: RecordAttributes, Target: el, AttributeName: key}
	if had {
		rec.OldValue = old
	}
	d.queueRecord(rec)
	return nil
}

// RemoveAttribute deletes an attribute from el.
func (d *Document) RemoveAttribute(el *html.Node, key string) {
	if el == nil || el.Type != html.ElementNode {
		return
	}
	for i := range el.Attr {
		if attrKey(el.Attr[i]) == key {
			old := el.Attr[i].Val
			el.Attr = append(el.Attr[:i], el.Attr[i+1:]...)
			d.touch()
			d.queueRecord(MutationRecord{Type: RecordAttributes, Target: el, AttributeName: key, OldValue: old})
			return
		}
	}
}

// Post schedules task to run on the document's loop at the next Flush.
// Safe for concurrent use.
func (d *Document) Post(task func()) {
	d.taskMu.Lock()
	d.tasks = append(d.tasks, task)
	d.taskMu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Wake signals that tasks were posted. Loops driving the document select on
// it and call Flush.
func (d *Document) Wake() <-chan struct{} { return d.wake }

// Flush runs posted tasks and delivers queued mutation records to observers
// until no more work is produced. Callback panics are recovered and logged.
func (d *Document) Flush() error {
	for round := 0; ; round++ {
		if round >= d.maxFlushRounds {
			d.logger.Warn("dom: flush limit reached", "rounds", round)
			return ErrFlushLimit
		}

		d.taskMu.Lock()
		tasks := d.tasks
		d.tasks = nil
		d.taskMu.Unlock()

		for _, t := range tasks {
			d.safely("task", t)
		}

		delivered := false
		for _, o := range append([]*MutationObserver(nil), d.observers...) {
			recs := o.TakeRecords()
			if len(recs) == 0 {
				continue
			}
			delivered = true
			d.safely("observer", func() { o.cb(recs, o) })
		}

		if !delivered && len(tasks) == 0 {
			d.pruneObservers()
			return nil
		}
	}
}

// pruneObservers forgets observers whose targets were all collected.
func (d *Document) pruneObservers() {
	d.observers = slices.DeleteFunc(d.observers, func(o *MutationObserver) bool {
		return len(o.queue) == 0 && !o.Observing()
	})
}

func (d *Document) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dom: callback panicked", "kind", kind, "panic", r)
		}
	}()
	fn()
}

func (d *Document) touch() {
	d.version++
}

// ParentElement returns the parent of n if it is an element. Children of a
// document or shadow root have no parent element.
func ParentElement(n *html.Node) *html.Node {
	if n == nil || n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

// TreeRoot returns the topmost ancestor of n: the document node, a shadow
// root, or the root of a detached subtree.
func TreeRoot(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// Contains reports whether n is an inclusive descendant of ancestor within
// the same tree.
func Contains(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// Attr returns the value of an attribute. Namespaced attributes are looked
// up as "ns:key".
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if attrKey(a) == key {
			return a.Val, true
		}
	}
	return "", false
}

// TextContent concatenates every descendant text node of n.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
			case html.ElementNode:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func attrKey(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

func splitAttrKey(key string) (ns, k string) {
	if i := strings.IndexByte(key, ':'); i > 0 {
		switch key[:i] {
		case "xlink", "xml", "xmlns":
			return key[:i], key[i+1:]
		}
	}
	return "", key
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := findFirst(c, pred); m != nil {
			return m
		}
	}
	return nil
}
