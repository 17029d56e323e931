package mirror

import (
	"math"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
)

// styler answers dom.Styler from the browser. Answers are cached until the
// next flush, or until the document changes.
type styler struct {
	m       *Mirror
	version uint64
	styles  map[styleKey]dom.Style
	rects   map[*html.Node]dom.Rect
}

type styleKey struct {
	el     *html.Node
	pseudo string
}

func newStyler(m *Mirror) *styler {
	return &styler{
		m:      m,
		styles: make(map[styleKey]dom.Style),
		rects:  make(map[*html.Node]dom.Rect),
	}
}

func (s *styler) reset() {
	clear(s.styles)
	clear(s.rects)
	s.version = s.m.doc.Version()
}

func (s *styler) fresh() {
	if v := s.m.doc.Version(); v != s.version {
		s.reset()
	}
}

// absent is the style of a pseudo-element the browser did not generate.
var absent = dom.Style{"content": "none", "display": "none"}

// ComputedStyle implements dom.Styler.
func (s *styler) ComputedStyle(el *html.Node, pseudo string) (dom.Style, error) {
	s.fresh()
	pseudo = strings.TrimLeft(strings.ToLower(pseudo), ":")
	key := styleKey{el, pseudo}
	if st, ok := s.styles[key]; ok {
		return st, nil
	}

	id, ok := s.m.ids[el]
	if !ok {
		return nil, dom.ErrNotElement
	}
	if pseudo != "" {
		pid, ok := s.m.pseudo[id][pseudo]
		if !ok {
			s.styles[key] = absent
			return absent, nil
		}
		id = pid
	}

	res, err := proto.CSSGetComputedStyleForNode{NodeID: id}.Call(s.m.client)
	if err != nil {
		return nil, err
	}
	st := make(dom.Style, len(res.ComputedStyle))
	for _, p := range res.ComputedStyle {
		st[p.Name] = p.Value
	}
	s.styles[key] = st
	return st, nil
}

// BoundingRect implements dom.Styler from the border box. Nodes without a
// layout box (display:none, detached) get an empty rect. Text nodes take
// their parent's box.
func (s *styler) BoundingRect(n *html.Node) (dom.Rect, error) {
	s.fresh()
	if n != nil && n.Type == html.TextNode {
		n = n.Parent
	}
	if n == nil {
		return dom.Rect{}, dom.ErrNotElement
	}
	if r, ok := s.rects[n]; ok {
		return r, nil
	}
	id, ok := s.m.ids[n]
	if !ok {
		return dom.Rect{}, nil
	}
	var r dom.Rect
	res, err := proto.DOMGetBoxModel{NodeID: id}.Call(s.m.client)
	if err == nil && res.Model != nil {
		r = quadRect(res.Model.Border)
	}
	s.rects[n] = r
	return r, nil
}

func quadRect(q proto.DOMQuad) dom.Rect {
	if len(q) < 8 {
		return dom.Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(q); i += 2 {
		minX, maxX = math.Min(minX, q[i]), math.Max(maxX, q[i])
		minY, maxY = math.Min(minY, q[i+1]), math.Max(maxY, q[i+1])
	}
	return dom.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
