package selector

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
)

func parse(t *testing.T, src string) *dom.Document {
	t.Helper()
	d, err := dom.ParseString(src)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func one(t *testing.T, d *dom.Document, scope *html.Node, sel string) *html.Node {
	t.Helper()
	n, err := d.Query(scope, sel)
	if err != nil || n == nil {
		t.Fatalf("Query(%q): %v, %v", sel, n, err)
	}
	return n
}

const cards = `
<div class="card" id="c1"><template shadowrootmode="open"><span class="badge">one</span></template></div>
<div class="card" id="c2"><template shadowrootmode="closed"><p><span class="badge">two</span></p></template></div>
<span class="badge">light</span>`

func TestResolve_ShadowChain(t *testing.T) {
	d := parse(t, `<div class="card"><template shadowrootmode="open"><span class="badge">x</span></template></div>`)
	card := one(t, d, d.Root(), ".card")

	got := Resolve(d, Parse(".card^^sh^^.badge"), nil, true)
	if len(got) != 1 {
		t.Fatalf("matches: got %d, want 1", len(got))
	}
	if dom.TextContent(got[0].Element) != "x" {
		t.Errorf("element: got %q", dom.TextContent(got[0].Element))
	}
	if len(got[0].RootParents) != 1 || got[0].RootParents[0] != card {
		t.Errorf("chain: got %v, want [card]", got[0].RootParents)
	}
}

func TestResolve_OpenAndClosedInOrder(t *testing.T) {
	d := parse(t, cards)
	got := Resolve(d, Parse(".card^^sh^^.badge"), nil, true)
	if len(got) != 2 {
		t.Fatalf("matches: got %d, want 2", len(got))
	}
	if dom.TextContent(got[0].Element) != "one" || dom.TextContent(got[1].Element) != "two" {
		t.Errorf("order: got %q, %q", dom.TextContent(got[0].Element), dom.TextContent(got[1].Element))
	}
}

func TestResolve_PlainHasNoChain(t *testing.T) {
	d := parse(t, cards)
	got := Resolve(d, Parse(".badge"), nil, true)
	if len(got) != 1 || got[0].RootParents != nil {
		t.Fatalf("got %+v", got)
	}
}

func TestResolve_WithoutRoots(t *testing.T) {
	d := parse(t, cards)
	for _, m := range Resolve(d, Parse(".card^^sh^^.badge"), nil, false) {
		if m.RootParents != nil {
			t.Errorf("chain returned with returnRoots=false")
		}
	}
}

func TestResolve_NestedShadows(t *testing.T) {
	d := parse(t, `<x-app><template shadowrootmode="open"><x-list><template shadowrootmode="closed"><li class="item">deep</li></template></x-list></template></x-app>`)
	app := one(t, d, d.Root(), "x-app")
	list := one(t, d, d.ShadowRoot(app).Root, "x-list")

	got := Resolve(d, Parse("x-app^^sh^^x-list^^sh^^li.item"), nil, true)
	if len(got) != 1 {
		t.Fatalf("matches: got %d, want 1", len(got))
	}
	chain := got[0].RootParents
	if len(chain) != 2 || chain[0] != app || chain[1] != list {
		t.Errorf("chain: got %v", chain)
	}
}

func TestResolve_SVGReference(t *testing.T) {
	d := parse(t, `<svg><defs><g id="icon"><text class="label">Ad</text></g></defs></svg>
		<svg class="a"><use href="#icon"></use></svg>
		<svg class="b"><use href="#missing"></use></svg>`)
	icon := one(t, d, d.Root(), "#icon")
	use := one(t, d, d.Root(), "svg.a use")

	got := Resolve(d, Parse("svg.a use^^svg^^"), nil, true)
	if len(got) != 1 || got[0].Element != icon {
		t.Fatalf("terminal: got %+v", got)
	}
	if len(got[0].RootParents) != 1 || got[0].RootParents[0] != use {
		t.Errorf("chain: got %v", got[0].RootParents)
	}

	got = Resolve(d, Parse("use^^svg^^.label"), nil, true)
	if len(got) != 1 || dom.TextContent(got[0].Element) != "Ad" {
		t.Errorf("tail: got %+v", got)
	}

	if got := Resolve(d, Parse("svg.b use^^svg^^"), nil, true); len(got) != 0 {
		t.Errorf("missing reference: got %d matches", len(got))
	}
}

func TestResolve_XlinkHref(t *testing.T) {
	d := parse(t, `<b id="t"></b><svg><use></use></svg>`)
	use := one(t, d, d.Root(), "use")
	if err := d.SetAttribute(use, "xlink:href", "#t"); err != nil {
		t.Fatal(err)
	}
	got := Resolve(d, Parse("use^^svg^^"), nil, false)
	if len(got) != 1 || got[0].Element.Data != "b" {
		t.Errorf("got %+v", got)
	}
}

func TestResolve_DegradesQuietly(t *testing.T) {
	d := parse(t, cards)
	for _, sel := range []string{".card^^nope^^.badge", "div[[", ".badge^^sh^^span", ".card^^sh^^"} {
		if got := Resolve(d, Parse(sel), nil, true); len(got) != 0 {
			t.Errorf("%q: got %d matches, want 0", sel, len(got))
		}
	}
}

func TestResolve_EmptyHeadIsScope(t *testing.T) {
	d := parse(t, cards)
	card := one(t, d, d.Root(), "#c1")
	got := Resolve(d, Parse("^^sh^^.badge"), card, true)
	if len(got) != 1 || got[0].RootParents[0] != card {
		t.Errorf("got %+v", got)
	}
}

func TestClosest(t *testing.T) {
	d := parse(t, `<section class="post"><div class="card"><template shadowrootmode="open"><article class="box"><span class="badge">x</span></article></template></div></section>`)
	r := NewResolver(d, nil)
	m := r.Resolve(Parse(".card^^sh^^.badge"), nil, true)[0]

	if got := r.Closest(m.Element, ".card^^sh^^.box", m.RootParents); got == nil || got.Data != "article" {
		t.Errorf("inside shadow: got %v", got)
	}
	if got := r.Closest(m.Element, ".post", m.RootParents); got == nil || got.Data != "section" {
		t.Errorf("plain from shadow: got %v", got)
	}
	if got := r.Closest(m.Element, "a^^sh^^b^^sh^^.box", m.RootParents); got != nil {
		t.Errorf("too many boundaries: got %v", got)
	}
	if got := r.Closest(m.Element, ".card^^sh^^.box^^svg^^", m.RootParents); got == nil {
		t.Error("svg suffix not stripped")
	}
}

func TestClosest_OuterBoundary(t *testing.T) {
	d := parse(t, `<x-app><template shadowrootmode="open"><div class="wrap"><x-list><template shadowrootmode="open"><li>deep</li></template></x-list></div></template></x-app>`)
	r := NewResolver(d, nil)
	m := r.Resolve(Parse("x-app^^sh^^x-list^^sh^^li"), nil, true)[0]

	got := r.Closest(m.Element, "x-app^^sh^^.wrap", m.RootParents)
	if got == nil || got.Data != "div" {
		t.Errorf("got %v, want div.wrap", got)
	}
}
