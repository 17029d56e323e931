package hide

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
)

func setup(t *testing.T, src string) (*dom.Document, *html.Node) {
	t.Helper()
	d, err := dom.ParseString(src)
	if err != nil {
		t.Fatal(err)
	}
	el, err := d.Query(d.Root(), "#a")
	if err != nil || el == nil {
		t.Fatalf("no #a: %v", err)
	}
	return d, el
}

func display(t *testing.T, d *dom.Document, el *html.Node) string {
	t.Helper()
	s, err := d.ComputedStyle(el, "")
	if err != nil {
		t.Fatal(err)
	}
	return s.Get("display")
}

func TestHide_Idempotent(t *testing.T) {
	d, el := setup(t, `<div id="a">ad</div>`)
	e := New(d, nil, nil)

	if !e.Hide(el) {
		t.Fatal("first Hide returned false")
	}
	v := d.Version()
	if e.Hide(el) {
		t.Error("second Hide returned true")
	}
	if d.Version() != v {
		t.Error("second Hide wrote to the document")
	}
	if display(t, d, el) != "none" {
		t.Errorf("display: got %q", display(t, d, el))
	}
	if !e.Hidden(el) || e.Count() != 1 {
		t.Errorf("registry: hidden=%v count=%d", e.Hidden(el), e.Count())
	}
}

func TestHide_Reasserts(t *testing.T) {
	d, el := setup(t, `<div id="a" style="color: red">ad</div>`)
	e := New(d, nil, nil)
	reasserted := 0
	e.OnReassert = func(*html.Node, string) { reasserted++ }
	e.Hide(el)

	if err := d.InlineStyle(el).SetProperty("display", "block", ""); err != nil {
		t.Fatal(err)
	}
	if err := d.Flush(); err != nil {
		t.Fatal(err)
	}
	st := d.InlineStyle(el)
	if st.PropertyValue("display") != "none" || st.PropertyPriority("display") != "important" {
		t.Errorf("inline display: got %q %q", st.PropertyValue("display"), st.PropertyPriority("display"))
	}
	if st.PropertyValue("color") != "red" {
		t.Errorf("unrelated property lost: %q", st.PropertyValue("color"))
	}
	if display(t, d, el) != "none" {
		t.Errorf("computed display: got %q", display(t, d, el))
	}
	if reasserted != 1 {
		t.Errorf("reasserted: got %d, want 1", reasserted)
	}

	// Rewriting the whole attribute is undone too.
	_ = d.SetAttribute(el, "style", "")
	_ = d.Flush()
	if display(t, d, el) != "none" {
		t.Errorf("after attribute reset: got %q", display(t, d, el))
	}
}

func TestHide_Release(t *testing.T) {
	d, el := setup(t, `<div id="a"></div>`)
	e := New(d, nil, nil)
	e.Hide(el)
	e.Release(el)

	_ = d.InlineStyle(el).SetProperty("display", "block", "")
	_ = d.Flush()
	if display(t, d, el) != "block" {
		t.Errorf("released element still enforced: %q", display(t, d, el))
	}
	if e.Hidden(el) {
		t.Error("released element still registered")
	}
}

func TestHide_CustomProperties(t *testing.T) {
	d, el := setup(t, `<div id="a"></div>`)
	e := New(d, []Property{{Name: "visibility", Value: "hidden"}, {Name: "opacity", Value: "0"}}, nil)
	e.Hide(el)

	s, _ := d.ComputedStyle(el, "")
	if s.Get("visibility") != "hidden" || s.Get("opacity") != "0" || s.Get("display") != "block" {
		t.Errorf("style: got %v", s)
	}
}

func TestHide_NonElement(t *testing.T) {
	d, el := setup(t, `<div id="a">text</div>`)
	e := New(d, nil, nil)
	if e.Hide(el.FirstChild) || e.Hide(nil) {
		t.Error("Hide accepted a non-element")
	}
}
