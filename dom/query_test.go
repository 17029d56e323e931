package dom

import "testing"

func TestQueryAll_HostDescendant(t *testing.T) {
	d := mustParse(t, `<div id="h"><template shadowrootmode="open"><p class="a"><span class="b"></span></p><span class="b"></span></template></div>`)
	sr := d.ShadowRoot(mustQuery(t, d, d.Root(), "#h"))

	all, err := d.QueryAll(sr.Root, ":host .b")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf(":host .b: got %d, want 2", len(all))
	}

	direct, err := d.QueryAll(sr.Root, ":host > .b")
	if err != nil {
		t.Fatal(err)
	}
	if len(direct) != 1 || direct[0].Parent != sr.Root {
		t.Errorf(":host > .b: got %d matches", len(direct))
	}
}

func TestClosest_Host(t *testing.T) {
	d := mustParse(t, `<div id="h"><template shadowrootmode="open"><p class="a"><span class="b"></span></p></template></div>`)
	sr := d.ShadowRoot(mustQuery(t, d, d.Root(), "#h"))
	span := mustQuery(t, d, sr.Root, ".b")

	got, err := d.Closest(span, ":host .a")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Data != "p" {
		t.Errorf("Closest(:host .a): got %v", got)
	}
	if got, _ := d.Closest(span, ":host"); got != nil {
		t.Error("bare :host matched inside the shadow tree")
	}
	if got, _ := d.Closest(span, "#h"); got != nil {
		t.Error("Closest left the shadow tree")
	}
}

func TestQueryAll_InvalidSelector(t *testing.T) {
	d := New()
	if _, err := d.QueryAll(d.Root(), "div[["); err == nil {
		t.Error("expected an error for an invalid selector")
	}
}

func TestQueryAll_ExcludesScope(t *testing.T) {
	d := mustParse(t, `<div class="x"><div class="x"></div></div>`)
	outer := mustQuery(t, d, d.Root(), ".x")
	got, _ := d.QueryAll(outer, ".x")
	if len(got) != 1 || got[0] == outer {
		t.Errorf("got %d matches including scope", len(got))
	}
}

func TestElementByID_PrefersOwnTree(t *testing.T) {
	d := mustParse(t, `<i id="t">doc</i><div id="h"><template shadowrootmode="open"><i id="t">shadow</i><b></b></template></div>`)
	sr := d.ShadowRoot(mustQuery(t, d, d.Root(), "#h"))
	b := mustQuery(t, d, sr.Root, "b")

	if got := d.ElementByID(b, "t"); TextContent(got) != "shadow" {
		t.Errorf("from shadow: got %q", TextContent(got))
	}
	if got := d.ElementByID(d.Root(), "t"); TextContent(got) != "doc" {
		t.Errorf("from document: got %q", TextContent(got))
	}
	if d.ElementByID(nil, "missing") != nil {
		t.Error("missing id matched")
	}
}
