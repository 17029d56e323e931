package dom

import "testing"

func TestInlineStyle_SetAndRead(t *testing.T) {
	d := mustParse(t, `<div id="a" style="color: red"></div>`)
	el := mustQuery(t, d, d.Root(), "#a")
	st := d.InlineStyle(el)

	if got := st.PropertyValue("color"); got != "red" {
		t.Errorf("color without trailing semicolon: got %q, want red", got)
	}
	if err := st.SetProperty("display", "none", "important"); err != nil {
		t.Fatal(err)
	}
	if got := st.PropertyValue("display"); got != "none" {
		t.Errorf("display: got %q", got)
	}
	if got := st.PropertyPriority("display"); got != "important" {
		t.Errorf("priority: got %q", got)
	}
	raw, _ := Attr(el, "style")
	if want := "color: red; display: none !important;"; raw != want {
		t.Errorf("style attr: got %q, want %q", raw, want)
	}

	if err := st.SetProperty("display", "block", ""); err != nil {
		t.Fatal(err)
	}
	if st.PropertyPriority("display") != "" || st.PropertyValue("display") != "block" {
		t.Errorf("after overwrite: got %q %q", st.PropertyValue("display"), st.PropertyPriority("display"))
	}

	if err := st.RemoveProperty("color"); err != nil {
		t.Fatal(err)
	}
	if st.PropertyValue("color") != "" {
		t.Error("color survived RemoveProperty")
	}
}

func TestInlineStyle_Tolerant(t *testing.T) {
	d := mustParse(t, `<div id="a" style=";; opacity: 0 ;; content: 'a;b';"></div>`)
	st := d.InlineStyle(mustQuery(t, d, d.Root(), "#a"))
	if got := st.PropertyValue("opacity"); got != "0" {
		t.Errorf("opacity: got %q", got)
	}
	if got := st.PropertyValue("content"); got != "'a;b'" {
		t.Errorf("content: got %q", got)
	}
}
