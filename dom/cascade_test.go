package dom

import "testing"

func computed(t *testing.T, d *Document, sel, pseudo string) Style {
	t.Helper()
	s, err := d.ComputedStyle(mustQuery(t, d, d.Root(), sel), pseudo)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCascade_Ordering(t *testing.T) {
	d := mustParse(t, `<style>
		#a { display: flex }
		div { display: inline-block !important }
		.c { color: blue }
		.c { color: #00ff00 }
	</style><div id="a" class="c" style="display: grid"></div><div id="b" style="display: none !important"></div>`)

	tests := []struct {
		sel, prop, want string
	}{
		{"#a", "display", "inline-block"},
		{"#a", "color", "rgb(0, 255, 0)"},
		{"#b", "display", "none"},
	}
	for _, tt := range tests {
		if got := computed(t, d, tt.sel, "").Get(tt.prop); got != tt.want {
			t.Errorf("%s %s: got %q, want %q", tt.sel, tt.prop, got, tt.want)
		}
	}
}

func TestCascade_Defaults(t *testing.T) {
	d := mustParse(t, `<div id="d"><span id="s">x</span></div><p id="p" hidden></p>`)
	if got := computed(t, d, "#d", "").Get("display"); got != "block" {
		t.Errorf("div display: got %q", got)
	}
	if got := computed(t, d, "#s", "").Get("display"); got != "inline" {
		t.Errorf("span display: got %q", got)
	}
	if got := computed(t, d, "#p", "").Get("display"); got != "none" {
		t.Errorf("[hidden] display: got %q", got)
	}
	s := computed(t, d, "#s", "")
	if s.Get("background-color") != "rgba(0, 0, 0, 0)" || s.Get("opacity") != "1" {
		t.Errorf("initial values: got %v", s)
	}
}

func TestCascade_Inheritance(t *testing.T) {
	d := mustParse(t, `<div style="visibility: hidden; color: red; font-size: 0; overflow: hidden"><span id="s" style="opacity: 0.50"></span></div>`)
	s := computed(t, d, "#s", "")
	if s.Get("visibility") != "hidden" {
		t.Errorf("visibility: got %q", s.Get("visibility"))
	}
	if s.Get("color") != "rgb(255, 0, 0)" {
		t.Errorf("color: got %q", s.Get("color"))
	}
	if s.Get("font-size") != "0px" {
		t.Errorf("font-size: got %q", s.Get("font-size"))
	}
	if s.Get("overflow-x") != "visible" {
		t.Errorf("overflow-x is not inherited: got %q", s.Get("overflow-x"))
	}
	if s.Get("opacity") != "0.5" {
		t.Errorf("opacity: got %q", s.Get("opacity"))
	}
}

func TestCascade_ShadowInheritsFromHost(t *testing.T) {
	d := mustParse(t, `<div id="h" style="visibility: hidden"><template shadowrootmode="open"><b>x</b></template></div>`)
	sr := d.ShadowRoot(mustQuery(t, d, d.Root(), "#h"))
	s, err := d.ComputedStyle(mustQuery(t, d, sr.Root, "b"), "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Get("visibility") != "hidden" {
		t.Errorf("visibility: got %q", s.Get("visibility"))
	}
}

func TestCascade_Pseudo(t *testing.T) {
	d := mustParse(t, `<style>.x::before { content: "Sp" } .x:after { content: attr(data-y) }</style><i class="x" data-y="on"></i>`)
	if got := computed(t, d, ".x", "::before").Get("content"); got != `"Sp"` {
		t.Errorf("::before content: got %q", got)
	}
	if got := computed(t, d, ".x", "after").Get("content"); got != "attr(data-y)" {
		t.Errorf("::after content: got %q", got)
	}
	if got := computed(t, d, ".x", "").Get("content"); got != "normal" {
		t.Errorf("element content: got %q", got)
	}
}

func TestCascade_CacheInvalidation(t *testing.T) {
	d := mustParse(t, `<div id="a"></div>`)
	if got := computed(t, d, "#a", "").Get("display"); got != "block" {
		t.Fatalf("display: got %q", got)
	}
	if err := d.AddStyleSheet(`#a { display: none }`); err != nil {
		t.Fatal(err)
	}
	if got := computed(t, d, "#a", "").Get("display"); got != "none" {
		t.Errorf("after AddStyleSheet: got %q", got)
	}
}

func TestBoundingRect_TextFallsBackToParent(t *testing.T) {
	d := mustParse(t, `<p>x</p>`)
	p := mustQuery(t, d, d.Root(), "p")
	d.SetRect(p, Rect{X: 1, Y: 2, Width: 3, Height: 4})
	r, err := d.BoundingRect(p.FirstChild)
	if err != nil {
		t.Fatal(err)
	}
	if r.Right() != 4 || r.Bottom() != 6 {
		t.Errorf("rect: got %+v", r)
	}
}

func TestNormalizeColor(t *testing.T) {
	tests := map[string]string{
		"red":                 "rgb(255, 0, 0)",
		"#fff":                "rgb(255, 255, 255)",
		"#00000000":           "rgba(0, 0, 0, 0)",
		"transparent":         "rgba(0, 0, 0, 0)",
		"rgba(0,0,0,0)":       "rgba(0, 0, 0, 0)",
		"rgb(10 20 30 / 50%)": "rgba(10, 20, 30, 0.5)",
		"hsl(0, 100%, 50%)":   "rgb(255, 0, 0)",
		"currentcolor":        "currentcolor",
	}
	for in, want := range tests {
		if got := NormalizeColor(in); got != want {
			t.Errorf("NormalizeColor(%q): got %q, want %q", in, got, want)
		}
	}
}
