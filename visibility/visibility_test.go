package visibility

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/pattern"
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

func TestIsVisible(t *testing.T) {
	d := parse(t, `<section id="top"><div id="mid" style="display: none"><p id="leaf">x</p></div><i id="ghost" style="visibility: collapse"></i></section>`)
	e := New(d, DefaultOptions(), nil)
	top, mid, leaf := one(t, d, d.Root(), "#top"), one(t, d, d.Root(), "#mid"), one(t, d, d.Root(), "#leaf")

	tests := []struct {
		name   string
		el     *html.Node
		stopAt *html.Node
		want   bool
	}{
		{"own style only", leaf, nil, true},
		{"stop at self", leaf, leaf, true},
		{"hidden ancestor on the way", leaf, top, false},
		{"display none", mid, nil, false},
		{"collapse", one(t, d, d.Root(), "#ghost"), nil, false},
	}
	for _, tt := range tests {
		if got := e.IsVisible(tt.el, nil, tt.stopAt, nil); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsVisible_TunnelsOutOfShadow(t *testing.T) {
	d := parse(t, `<section id="top"><div id="host" style="display: none"><template shadowrootmode="closed"><b>x</b></template></div></section>`)
	e := New(d, DefaultOptions(), nil)
	top, host := one(t, d, d.Root(), "#top"), one(t, d, d.Root(), "#host")
	b := one(t, d, d.ShadowRoot(host).Root, "b")

	if e.IsVisible(b, nil, top, []*html.Node{host}) {
		t.Error("hidden host not seen through the shadow boundary")
	}
	if !e.IsVisible(b, nil, top, nil) {
		t.Error("without a chain the shadow top counts as visible")
	}
}

func TestIsVisible_OrphanIsVisible(t *testing.T) {
	d := dom.New()
	orphan := d.CreateElement("div")
	child := d.CreateElement("span")
	d.AppendChild(orphan, child)
	e := New(d, DefaultOptions(), nil)

	if !e.IsVisible(child, nil, d.Body(), nil) {
		t.Error("detached subtree with no boundary left must count as visible")
	}
}

func TestIsTextVisible(t *testing.T) {
	e := New(dom.New(), DefaultOptions(), nil)
	base := dom.Style{"opacity": "1", "font-size": "16px", "color": "rgb(0, 0, 0)", "background-color": "rgba(0, 0, 0, 0)"}
	with := func(k, v string) dom.Style {
		s := dom.Style{}
		for key, val := range base {
			s[key] = val
		}
		s[k] = v
		return s
	}

	tests := []struct {
		name  string
		style dom.Style
		want  bool
	}{
		{"plain", base, true},
		{"opacity 0", with("opacity", "0"), false},
		{"opacity 0.5", with("opacity", "0.5"), true},
		{"font-size 0", with("font-size", "0px"), false},
		{"transparent text", with("color", "rgba(0, 0, 0, 0)"), false},
		{"same colour", with("background-color", "rgb(0, 0, 0)"), false},
	}
	for _, tt := range tests {
		if got := e.IsTextVisible(tt.style); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	lax := New(dom.New(), Options{AllowSameColor: true, HiddenText: []StylePattern{}}, nil)
	if !lax.IsTextVisible(with("background-color", "rgb(0, 0, 0)")) {
		t.Error("AllowSameColor ignored")
	}

	custom := New(dom.New(), Options{HiddenText: []StylePattern{{Property: "position", Pattern: pattern.MustCompile("absolute")}}}, nil)
	if custom.IsTextVisible(with("position", "absolute")) {
		t.Error("custom hidden-text pattern ignored")
	}
}

func TestContained_Reflexive(t *testing.T) {
	rects := []dom.Rect{
		{},
		{X: 10, Y: 20, Width: 30, Height: 40},
		{X: -5, Y: -5, Width: 0.5, Height: 1e6},
	}
	for _, r := range rects {
		for _, m := range []float64{0, 1, 12.5} {
			if !Contained(r, r, m) {
				t.Errorf("Contained(%v, %v, %v) = false", r, r, m)
			}
		}
	}
}

func TestContained_Margin(t *testing.T) {
	parent := dom.Rect{X: 0, Y: 0, Width: 100, Height: 100}
	child := dom.Rect{X: -5, Y: 10, Width: 20, Height: 20}
	if Contained(child, parent, 0) {
		t.Error("overflowing child contained without margin")
	}
	if !Contained(child, parent, 5) {
		t.Error("margin boundary must be inclusive")
	}
}
