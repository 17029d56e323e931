package selector

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/debuglog"
	"github.com/hazyhaar/domshield/dom"
)

// Match is one resolved element and the boundaries crossed to reach it,
// oldest first.
type Match struct {
	Element     *html.Node
	RootParents []*html.Node
}

// Resolver evaluates Programs against a host. Resolution only reads the
// tree.
type Resolver struct {
	host dom.Host
	log  *debuglog.Logger
}

// NewResolver creates a Resolver. A nil log is silent.
func NewResolver(host dom.Host, log *debuglog.Logger) *Resolver {
	if log == nil {
		log = debuglog.Nop()
	}
	return &Resolver{host: host, log: log}
}

// Resolve runs p under scope, in document order per boundary. When
// returnRoots is false the matches carry no chain.
func Resolve(host dom.Host, p *Program, scope *html.Node, returnRoots bool) []Match {
	return NewResolver(host, nil).Resolve(p, scope, returnRoots)
}

// ResolveString parses src and resolves it.
func (r *Resolver) ResolveString(src string, scope *html.Node, returnRoots bool) []Match {
	return r.Resolve(Parse(src), scope, returnRoots)
}

// Resolve runs p under scope. A nil scope means the document.
func (r *Resolver) Resolve(p *Program, scope *html.Node, returnRoots bool) []Match {
	if scope == nil {
		scope = r.host.Root()
	}
	matches := r.resolve(p, scope, nil)
	if !returnRoots {
		for i := range matches {
			matches[i].RootParents = nil
		}
	}
	return matches
}

// Elements resolves p and drops the chains.
func (r *Resolver) Elements(p *Program, scope *html.Node) []*html.Node {
	matches := r.Resolve(p, scope, false)
	out := make([]*html.Node, len(matches))
	for i, m := range matches {
		out[i] = m.Element
	}
	return out
}

func (r *Resolver) resolve(p *Program, scope *html.Node, chain []*html.Node) []Match {
	seg := p.Segment
	if seg.Kind == Plain {
		nodes, err := r.host.QueryAll(scope, seg.Head)
		if err != nil {
			r.log.Error("selector: query failed", "selector", seg.Head, "error", err)
			return nil
		}
		out := make([]Match, len(nodes))
		for i, n := range nodes {
			out[i] = Match{Element: n, RootParents: chain}
		}
		return out
	}

	var parents []*html.Node
	if seg.Head == "" {
		parents = []*html.Node{scope}
	} else {
		nodes, err := r.host.QueryAll(scope, seg.Head)
		if err != nil {
			r.log.Error("selector: query failed", "selector", seg.Head, "error", err)
			return nil
		}
		parents = nodes
	}

	var out []Match
	for _, parent := range parents {
		next := appendChain(chain, parent)
		switch seg.Kind {
		case SVGRef:
			target := r.svgTarget(parent)
			if target == nil {
				r.log.Info("selector: svg reference resolves to nothing", "selector", p.Source)
				continue
			}
			if seg.Tail.IsBlank() {
				out = append(out, Match{Element: target, RootParents: next})
				continue
			}
			out = append(out, r.resolve(seg.Tail, target, next)...)
		case Shadow:
			sr := r.shadowRoot(parent)
			if sr == nil {
				continue
			}
			out = append(out, r.resolve(hostScoped(seg.Tail), sr, next)...)
		default:
			r.log.Warn("selector: unknown command", "command", seg.Command, "selector", p.Source)
		}
	}
	return out
}

// shadowRoot swallows accessor failures; the host may refuse closed roots.
func (r *Resolver) shadowRoot(el *html.Node) (root *html.Node) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("selector: shadow root accessor failed", "panic", rec)
			root = nil
		}
	}()
	sr := r.host.ShadowRoot(el)
	if sr == nil {
		return nil
	}
	return sr.Root
}

func (r *Resolver) svgTarget(el *html.Node) *html.Node {
	ref, ok := dom.Attr(el, "xlink:href")
	if !ok {
		ref, ok = dom.Attr(el, "href")
	}
	if !ok {
		return nil
	}
	id, found := strings.CutPrefix(strings.TrimSpace(ref), "#")
	if !found || id == "" {
		return nil
	}
	return r.host.ElementByID(el, id)
}

// hostScoped prefixes the first plain selector of p with ":host ".
func hostScoped(p *Program) *Program {
	if p == nil {
		return &Program{Source: ":host ", Segment: Segment{Kind: Plain, Head: ":host "}}
	}
	seg := p.Segment
	if seg.Kind == Plain {
		head := ":host " + seg.Head
		return &Program{Source: ":host " + p.Source, Segment: Segment{Kind: Plain, Head: head}}
	}
	if seg.Head == "" {
		return p
	}
	seg.Head = ":host " + seg.Head
	return &Program{Source: ":host " + p.Source, Segment: seg}
}

func appendChain(chain []*html.Node, n *html.Node) []*html.Node {
	out := make([]*html.Node, len(chain)+1)
	copy(out, chain)
	out[len(chain)] = n
	return out
}

// Closest finds the nearest ancestor of el matching src, continuing past
// the shadow boundaries recorded in rootParents.
func (r *Resolver) Closest(el *html.Node, src string, rootParents []*html.Node) *html.Node {
	if i := strings.Index(src, Separator+"svg"+Separator); i >= 0 {
		src = src[:i]
	}
	target := el
	sel := src
	if strings.Contains(src, Separator+"sh"+Separator) {
		segs := strings.Split(src, Separator+"sh"+Separator)
		count := len(segs) - 1
		sel = ":host " + segs[len(segs)-1]
		switch {
		case count == len(rootParents):
			target = el
		case count < len(rootParents):
			target = rootParents[count]
		default:
			return nil
		}
	} else if len(rootParents) > 0 {
		target = rootParents[0]
	}
	if target == nil {
		return nil
	}
	found, err := r.host.Closest(target, sel)
	if err != nil {
		r.log.Error("selector: closest failed", "selector", sel, "error", err)
		return nil
	}
	return found
}
