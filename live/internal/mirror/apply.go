package mirror

import (
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domshield/dom"
)

// CDP node types.
const (
	nodeElement = 1
	nodeText    = 3
	nodeComment = 8
	nodeDoctype = 10
)

func (m *Mirror) bind(id proto.DOMNodeID, n *html.Node) {
	m.nodes[id] = n
	m.ids[n] = id
}

// build converts a CDP subtree into a detached html tree, binding every node
// and attaching shadow roots. ns is the parent's element namespace.
func (m *Mirror) build(src *proto.DOMNode, ns string) *html.Node {
	if src == nil {
		return nil
	}
	var n *html.Node
	switch src.NodeType {
	case nodeElement:
		n = m.element(src, ns)
	case nodeText:
		n = &html.Node{Type: html.TextNode, Data: src.NodeValue}
	case nodeComment:
		n = &html.Node{Type: html.CommentNode, Data: src.NodeValue}
	case nodeDoctype:
		n = &html.Node{Type: html.DoctypeNode, Data: strings.ToLower(src.NodeName)}
	default:
		return nil
	}
	m.bind(src.NodeID, n)
	if n.Type != html.ElementNode {
		return n
	}

	childNS := n.Namespace
	if n.Namespace == "svg" && n.Data == "foreignObject" {
		childNS = ""
	}
	for _, c := range src.Children {
		if k := m.build(c, childNS); k != nil {
			n.AppendChild(k)
		}
	}
	for _, sr := range src.ShadowRoots {
		m.attachShadow(n, sr)
	}
	for _, p := range src.PseudoElements {
		m.setPseudo(src.NodeID, p)
	}
	if v, ok := dom.Attr(n, "style"); ok {
		m.synced[n] = v
	}
	return n
}

func (m *Mirror) element(src *proto.DOMNode, ns string) *html.Node {
	name := src.LocalName
	if name == "" {
		name = strings.ToLower(src.NodeName)
	}
	switch name {
	case "svg":
		ns = "svg"
	case "math":
		ns = "math"
	}
	data := name
	if ns == "" {
		data = strings.ToLower(name)
	}
	n := &html.Node{Type: html.ElementNode, Data: data, Namespace: ns}
	if ns == "" {
		n.DataAtom = atom.Lookup([]byte(data))
	}
	for i := 0; i+1 < len(src.Attributes); i += 2 {
		n.Attr = append(n.Attr, attribute(src.Attributes[i], src.Attributes[i+1]))
	}
	return n
}

func attribute(name, val string) html.Attribute {
	if i := strings.IndexByte(name, ':'); i > 0 {
		switch name[:i] {
		case "xlink", "xml", "xmlns":
			return html.Attribute{Namespace: name[:i], Key: name[i+1:], Val: val}
		}
	}
	return html.Attribute{Key: name, Val: val}
}

// attachShadow builds a shadow root under host. User-agent roots (form
// controls, media) are not part of the page and are skipped.
func (m *Mirror) attachShadow(host *html.Node, src *proto.DOMNode) {
	mode := dom.ShadowOpen
	switch src.ShadowRootType {
	case proto.DOMShadowRootTypeClosed:
		mode = dom.ShadowClosed
	case proto.DOMShadowRootTypeUserAgent:
		return
	}
	sr, err := m.doc.AttachShadow(host, mode)
	if err != nil {
		m.log.Debug("mirror: attach shadow", "error", err)
		return
	}
	m.bind(src.NodeID, sr.Root)
	for _, c := range src.Children {
		if k := m.build(c, host.Namespace); k != nil {
			sr.Root.AppendChild(k)
		}
	}
	m.watch(sr.Root)
}

// forget unbinds n and its subtree, shadow trees included.
func (m *Mirror) forget(n *html.Node) {
	if id, ok := m.ids[n]; ok {
		delete(m.ids, n)
		delete(m.nodes, id)
		delete(m.pseudo, id)
	}
	delete(m.synced, n)
	if sr := m.doc.ShadowRoot(n); sr != nil {
		m.forget(sr.Root)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.forget(c)
	}
}

func (m *Mirror) apply(e proto.Event) {
	switch e := e.(type) {
	case *proto.DOMChildNodeInserted:
		m.onInserted(e)
	case *proto.DOMChildNodeRemoved:
		n := m.nodes[e.NodeID]
		if n == nil {
			m.unknown(e, e.NodeID)
			return
		}
		m.doc.Remove(n)
		m.forget(n)
	case *proto.DOMSetChildNodes:
		m.onSetChildNodes(e)
	case *proto.DOMAttributeModified:
		m.onAttribute(e.NodeID, e.Name, e.Value, true)
	case *proto.DOMAttributeRemoved:
		m.onAttribute(e.NodeID, e.Name, "", false)
	case *proto.DOMCharacterDataModified:
		n := m.nodes[e.NodeID]
		if n == nil {
			m.unknown(e, e.NodeID)
			return
		}
		m.doc.SetText(n, e.CharacterData)
	case *proto.DOMShadowRootPushed:
		host := m.nodes[e.HostID]
		if host == nil {
			m.unknown(e, e.HostID)
			return
		}
		if old := m.doc.ShadowRoot(host); old != nil {
			m.forget(old.Root)
			m.doc.DetachShadow(host)
		}
		m.attachShadow(host, e.Root)
	case *proto.DOMShadowRootPopped:
		host := m.nodes[e.HostID]
		if host == nil {
			m.unknown(e, e.HostID)
			return
		}
		if sr := m.doc.ShadowRoot(host); sr != nil {
			m.forget(sr.Root)
			m.doc.DetachShadow(host)
		}
	case *proto.DOMPseudoElementAdded:
		m.setPseudo(e.ParentID, e.PseudoElement)
	case *proto.DOMPseudoElementRemoved:
		for kind, id := range m.pseudo[e.ParentID] {
			if id == e.PseudoElementID {
				delete(m.pseudo[e.ParentID], kind)
			}
		}
	case *proto.DOMDocumentUpdated:
		if err := m.reload(); err != nil {
			m.log.Error("mirror: reload after document update", "error", err)
		}
	}
}

func (m *Mirror) setPseudo(parent proto.DOMNodeID, p *proto.DOMNode) {
	if p == nil {
		return
	}
	kinds := m.pseudo[parent]
	if kinds == nil {
		kinds = make(map[string]proto.DOMNodeID, 2)
		m.pseudo[parent] = kinds
	}
	kinds[string(p.PseudoType)] = p.NodeID
}

func (m *Mirror) onInserted(e *proto.DOMChildNodeInserted) {
	parent := m.nodes[e.ParentNodeID]
	if parent == nil {
		m.unknown(e, e.ParentNodeID)
		return
	}
	var ref *html.Node
	if e.PreviousNodeID == 0 {
		ref = parent.FirstChild
	} else if prev := m.nodes[e.PreviousNodeID]; prev != nil && prev.Parent == parent {
		ref = prev.NextSibling
	}
	if old := m.nodes[e.Node.NodeID]; old != nil {
		// Stale binding left by a missed removal.
		m.doc.Remove(old)
		m.forget(old)
	}
	n := m.build(e.Node, namespaceOf(parent))
	if n == nil {
		return
	}
	m.doc.InsertBefore(parent, n, ref)
}

func (m *Mirror) onSetChildNodes(e *proto.DOMSetChildNodes) {
	parent := m.nodes[e.ParentID]
	if parent == nil {
		m.unknown(e, e.ParentID)
		return
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		m.forget(c)
	}
	var kids []*html.Node
	for _, c := range e.Nodes {
		if n := m.build(c, namespaceOf(parent)); n != nil {
			kids = append(kids, n)
		}
	}
	m.doc.ReplaceChildren(parent, kids...)
}

func (m *Mirror) onAttribute(id proto.DOMNodeID, name, value string, set bool) {
	el := m.nodes[id]
	if el == nil || el.Type != html.ElementNode {
		m.unknown(nil, id)
		return
	}
	key := attrName(attribute(name, ""))
	cur, had := dom.Attr(el, key)
	if name == "style" {
		m.synced[el] = value
	}
	if set {
		if had && cur == value {
			return
		}
		_ = m.doc.SetAttribute(el, key, value)
		return
	}
	if had {
		m.doc.RemoveAttribute(el, key)
	}
}

func (m *Mirror) unknown(e proto.Event, id proto.DOMNodeID) {
	ev := ""
	if e != nil {
		ev = e.ProtoEvent()
	}
	m.log.Debug("mirror: event for unknown node", "event", ev, "node", id)
}

func namespaceOf(n *html.Node) string {
	if n.Type != html.ElementNode || (n.Namespace == "svg" && n.Data == "foreignObject") {
		return ""
	}
	return n.Namespace
}

func attrName(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}
