// Package mirror keeps a dom.Document in step with a browser page over the
// DevTools protocol. The full tree, shadow roots included, is fetched with
// DOM.getDocument(depth=-1, pierce=true); DOM events are then applied on
// the document's loop so rules see the page's mutations as if they ran in
// it. Computed styles and geometry are answered by the browser, and style
// attributes written locally (hides) are pushed back.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
)

// ErrNotLoaded is returned by Run before Load succeeded.
var ErrNotLoaded = errors.New("mirror: document not loaded")

// Config configures a Mirror.
type Config struct {
	Logger *slog.Logger
	// FlushLimit bounds delivery rounds per flush. Default: dom's default.
	FlushLimit int
	// OnFlush is called from the loop after every flush.
	OnFlush func(elapsed time.Duration, err error)
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Mirror owns one document. Except for Dispatch, Post and the counters,
// its state is touched only from the loop run by Run.
type Mirror struct {
	client proto.Client
	cfg    Config
	log    *slog.Logger
	doc    *dom.Document

	nodes  map[proto.DOMNodeID]*html.Node
	ids    map[*html.Node]proto.DOMNodeID
	pseudo map[proto.DOMNodeID]map[string]proto.DOMNodeID // parent -> before/after
	// synced is the style attribute value the browser is known to hold.
	synced map[*html.Node]string
	writer *dom.MutationObserver
	styles *styler

	loaded  bool
	flushes atomic.Int64
	pushes  atomic.Int64
	events  atomic.Int64
}

// New creates a Mirror talking to client, usually a *rod.Page.
func New(client proto.Client, cfg Config) *Mirror {
	cfg.defaults()
	var opts []dom.Option
	opts = append(opts, dom.WithLogger(cfg.Logger))
	if cfg.FlushLimit > 0 {
		opts = append(opts, dom.WithFlushLimit(cfg.FlushLimit))
	}
	m := &Mirror{
		client: client,
		cfg:    cfg,
		log:    cfg.Logger,
		doc:    dom.New(opts...),
		nodes:  make(map[proto.DOMNodeID]*html.Node),
		ids:    make(map[*html.Node]proto.DOMNodeID),
		pseudo: make(map[proto.DOMNodeID]map[string]proto.DOMNodeID),
		synced: make(map[*html.Node]string),
	}
	m.styles = newStyler(m)
	m.writer = m.doc.NewMutationObserver(m.pushStyles)
	return m
}

// Document returns the mirrored document. Use it from the loop only.
func (m *Mirror) Document() *dom.Document { return m.doc }

// Post runs fn on the loop.
func (m *Mirror) Post(fn func()) { m.doc.Post(fn) }

// Load enables the DOM and CSS domains, fetches the tree and installs the
// browser-backed styler. Call it before Run.
func (m *Mirror) Load() error {
	if err := (proto.DOMEnable{}).Call(m.client); err != nil {
		return fmt.Errorf("mirror: DOM.enable: %w", err)
	}
	if err := (proto.CSSEnable{}).Call(m.client); err != nil {
		return fmt.Errorf("mirror: CSS.enable: %w", err)
	}
	if err := m.reload(); err != nil {
		return err
	}
	m.doc.SetStyler(m.styles)
	m.loaded = true
	return nil
}

// reload fetches the whole tree and replaces the document's children.
// Node IDs from before are invalid afterwards.
func (m *Mirror) reload() error {
	depth := -1
	res, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(m.client)
	if err != nil {
		return fmt.Errorf("mirror: DOM.getDocument: %w", err)
	}
	if res.Root == nil {
		return errors.New("mirror: DOM.getDocument returned no root")
	}

	clear(m.nodes)
	clear(m.ids)
	clear(m.pseudo)
	clear(m.synced)
	m.writer.Disconnect()

	root := m.doc.Root()
	m.bind(res.Root.NodeID, root)
	var kids []*html.Node
	for _, c := range res.Root.Children {
		if n := m.build(c, ""); n != nil {
			kids = append(kids, n)
		}
	}
	m.doc.ReplaceChildren(root, kids...)
	m.watch(root)

	m.log.Info("mirror: document loaded", "nodes", len(m.nodes))
	return nil
}

// Run drives the document loop until ctx is done: posted work and event
// application happen here, then observers are flushed.
func (m *Mirror) Run(ctx context.Context) error {
	if !m.loaded {
		return ErrNotLoaded
	}
	m.flush()
	for {
		select {
		case <-ctx.Done():
			m.writer.Disconnect()
			return nil
		case <-m.doc.Wake():
			m.flush()
		}
	}
}

func (m *Mirror) flush() {
	m.styles.reset()
	start := time.Now()
	err := m.doc.Flush()
	m.flushes.Add(1)
	if err != nil {
		m.log.Warn("mirror: flush", "error", err)
	}
	if m.cfg.OnFlush != nil {
		m.cfg.OnFlush(time.Since(start), err)
	}
}

// Subscribe forwards the page's DOM events to the loop until ctx is done.
func (m *Mirror) Subscribe(ctx context.Context, page *rod.Page) {
	wait := page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) { m.Dispatch(e) },
		func(e *proto.DOMChildNodeRemoved) { m.Dispatch(e) },
		func(e *proto.DOMSetChildNodes) { m.Dispatch(e) },
		func(e *proto.DOMAttributeModified) { m.Dispatch(e) },
		func(e *proto.DOMAttributeRemoved) { m.Dispatch(e) },
		func(e *proto.DOMCharacterDataModified) { m.Dispatch(e) },
		func(e *proto.DOMShadowRootPushed) { m.Dispatch(e) },
		func(e *proto.DOMShadowRootPopped) { m.Dispatch(e) },
		func(e *proto.DOMPseudoElementAdded) { m.Dispatch(e) },
		func(e *proto.DOMPseudoElementRemoved) { m.Dispatch(e) },
		func(e *proto.DOMDocumentUpdated) { m.Dispatch(e) },
	)
	go wait()
}

// Dispatch queues a DOM event for the loop. Safe for concurrent use.
func (m *Mirror) Dispatch(e proto.Event) {
	m.events.Add(1)
	m.doc.Post(func() { m.apply(e) })
}

// Stats are cumulative counters.
type Stats struct {
	Events  int64 // DOM events dispatched
	Flushes int64 // loop flushes
	Pushes  int64 // style attributes written back
}

// Stats returns counters. Safe for concurrent use.
func (m *Mirror) Stats() Stats {
	return Stats{Events: m.events.Load(), Flushes: m.flushes.Load(), Pushes: m.pushes.Load()}
}

// NodeID returns the browser ID of n. Loop only.
func (m *Mirror) NodeID(n *html.Node) (proto.DOMNodeID, bool) {
	id, ok := m.ids[n]
	return id, ok
}

// Node returns the mirrored node for id. Loop only.
func (m *Mirror) Node(id proto.DOMNodeID) *html.Node { return m.nodes[id] }
