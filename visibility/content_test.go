package visibility

import (
	"testing"

	"github.com/hazyhaar/domshield/dom"
)

func TestDecodeContent(t *testing.T) {
	attrs := map[string]string{"data-label": "Ad"}
	lookup := func(name string) string { return attrs[name] }

	tests := []struct {
		in, want string
	}{
		{`"Spon" "sored"`, "Spon sored"},
		{`"Spon""sored"`, "Sponsored"},
		{`'it\'s'`, `it\'s`},
		{`"\53 ponsored"`, `\53 ponsored`},
		{`"a\"b"`, `a\"b`},
		{`attr(data-label) " x"`, "Ad x"},
		{`"x" attr( data-label ) "y"`, "xAdy"},
		{`attr(missing)`, ""},
		{`"a" counter(x) "b"`, "a counter(x) b"},
		{`counter(item) ". " url(x.png)`, "counter(item) .  url(x.png)"},
		{`open-quote "q" close-quote`, "open-quote q close-quote"},
	}
	for _, tt := range tests {
		if got := DecodeContent(tt.in, lookup); got != tt.want {
			t.Errorf("DecodeContent(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPseudoContent(t *testing.T) {
	d := parse(t, `<style>
		.a::before { content: "Spon" }
		.a::after { content: attr(data-x) }
		.b::before { content: "hidden"; opacity: 0 }
		.c::before { content: "gone"; display: none }
	</style><i class="a" data-x="sored"></i><i class="b"></i><i class="c"></i><i class="d"></i>`)
	e := New(d, DefaultOptions(), nil)

	tests := []struct {
		sel, pseudo, want string
	}{
		{".a", "::before", "Spon"},
		{".a", "::after", "sored"},
		{".b", "::before", ""},
		{".c", "::before", ""},
		{".d", "::before", ""},
	}
	for _, tt := range tests {
		if got := e.PseudoContent(one(t, d, d.Root(), tt.sel), tt.pseudo); got != tt.want {
			t.Errorf("%s%s: got %q, want %q", tt.sel, tt.pseudo, got, tt.want)
		}
	}
}

func TestVisibleContent(t *testing.T) {
	d := parse(t, `<style>.lbl::before { content: "Spon" }</style>
		<div id="post"><span class="lbl"></span><span>so</span><span style="display: none">XX</span><span style="font-size: 0">YY</span><span>red</span></div>`)
	e := New(d, DefaultOptions(), nil)
	post := one(t, d, d.Root(), "#post")

	if got := e.VisibleContent(post, post, nil); got != "Sponsored" {
		t.Errorf("got %q, want %q", got, "Sponsored")
	}
}

func TestVisibleContent_Clipped(t *testing.T) {
	d := parse(t, `<div id="box" style="overflow: hidden"><span id="in">in</span><span id="out">out</span></div>`)
	box, in, out := one(t, d, d.Root(), "#box"), one(t, d, d.Root(), "#in"), one(t, d, d.Root(), "#out")
	d.SetRect(box, dom.Rect{Width: 100, Height: 20})
	d.SetRect(in, dom.Rect{X: 10, Width: 20, Height: 20})
	d.SetRect(out, dom.Rect{X: 500, Width: 20, Height: 20})
	e := New(d, DefaultOptions(), nil)

	if got := e.VisibleContent(box, box, nil); got != "in" {
		t.Errorf("got %q, want %q", got, "in")
	}
}

func TestVisibleContent_CheckContained(t *testing.T) {
	d := parse(t, `<div id="card"><span id="a">keep</span><span id="b">drop</span></div>`)
	card, a, b := one(t, d, d.Root(), "#card"), one(t, d, d.Root(), "#a"), one(t, d, d.Root(), "#b")
	d.SetRect(card, dom.Rect{Width: 100, Height: 100})
	d.SetRect(a, dom.Rect{X: 10, Y: 10, Width: 10, Height: 10})
	d.SetRect(b, dom.Rect{X: -1000, Y: 10, Width: 10, Height: 10})

	loose := New(d, DefaultOptions(), nil)
	if got := loose.VisibleContent(card, card, nil); got != "keepdrop" {
		t.Errorf("without containment: got %q", got)
	}

	opts := DefaultOptions()
	opts.CheckContained = true
	strict := New(d, opts, nil)
	if got := strict.VisibleContent(card, card, nil); got != "keep" {
		t.Errorf("with containment: got %q", got)
	}
}
