package dom

import (
	"slices"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Styler supplies computed styles and geometry. The in-memory Cascade is the
// default; a live page swaps in a browser-backed implementation.
type Styler interface {
	ComputedStyle(el *html.Node, pseudo string) (Style, error)
	BoundingRect(n *html.Node) (Rect, error)
}

// Rect is a bounding box in CSS pixels.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// ComputedStyle returns the resolved style of el, or of its ::before /
// ::after pseudo-element when pseudo is set.
func (d *Document) ComputedStyle(el *html.Node, pseudo string) (Style, error) {
	if el == nil || el.Type != html.ElementNode {
		return nil, ErrNotElement
	}
	return d.styler.ComputedStyle(el, pseudo)
}

// BoundingRect returns the box of n.
func (d *Document) BoundingRect(n *html.Node) (Rect, error) {
	return d.styler.BoundingRect(n)
}

// SetRect assigns geometry to n for the in-memory cascade.
func (d *Document) SetRect(n *html.Node, r Rect) {
	d.rects.Put(n, r)
}

// SetStyler replaces the style source. nil restores the in-memory cascade.
func (d *Document) SetStyler(s Styler) {
	if s == nil {
		s = d.cascade
	}
	d.styler = s
}

// AddStyleSheet appends an author sheet applying to the document tree.
func (d *Document) AddStyleSheet(src string) error {
	rules, err := d.cascade.compileSheet(src)
	if err != nil {
		return err
	}
	d.cascade.extra = append(d.cascade.extra, rules...)
	d.touch()
	return nil
}

// Cascade is a minimal style resolver: author rules from <style> elements of
// the element's own tree, sheets added with AddStyleSheet, the style
// attribute, inheritance of a few properties and user-agent display
// defaults. Results are cached until the document changes.
type Cascade struct {
	doc   *Document
	extra []styleRule

	sheets map[string][]styleRule

	cacheVersion uint64
	cache        map[styleKey]Style
	treeRules    map[*html.Node][]styleRule
}

type styleKey struct {
	el     *html.Node
	pseudo string
}

type styleRule struct {
	sel         cascadia.Sel
	pseudo      string
	specificity cascadia.Specificity
	order       int
	decls       []Declaration
}

func newCascade(d *Document) *Cascade {
	return &Cascade{
		doc:    d,
		sheets: make(map[string][]styleRule),
		cache:  make(map[styleKey]Style),

		treeRules: make(map[*html.Node][]styleRule),
	}
}

var inherited = map[string]bool{
	"visibility":  true,
	"color":       true,
	"font-size":   true,
	"font-family": true,
}

var colorProps = map[string]bool{
	"color":            true,
	"background-color": true,
	"border-color":     true,
}

func initialValue(prop string) string {
	switch prop {
	case "display":
		return "inline"
	case "visibility":
		return "visible"
	case "opacity":
		return "1"
	case "color":
		return "rgb(0, 0, 0)"
	case "background-color":
		return "rgba(0, 0, 0, 0)"
	case "font-size":
		return "16px"
	case "overflow-x", "overflow-y":
		return "visible"
	case "position":
		return "static"
	case "content":
		return "normal"
	case "clip-path", "transform":
		return "none"
	}
	return ""
}

var blockTags = map[atom.Atom]string{
	atom.Html: "block", atom.Body: "block", atom.Div: "block", atom.P: "block",
	atom.Section: "block", atom.Article: "block", atom.Aside: "block", atom.Nav: "block",
	atom.Header: "block", atom.Footer: "block", atom.Main: "block", atom.Form: "block",
	atom.Ul: "block", atom.Ol: "block", atom.Li: "list-item", atom.Figure: "block",
	atom.H1: "block", atom.H2: "block", atom.H3: "block", atom.H4: "block",
	atom.H5: "block", atom.H6: "block", atom.Table: "table", atom.Tr: "table-row",
	atom.Td: "table-cell", atom.Th: "table-cell", atom.Blockquote: "block", atom.Pre: "block",
	atom.Head: "none", atom.Script: "none", atom.Style: "none", atom.Template: "none",
	atom.Title: "none", atom.Meta: "none", atom.Link: "none", atom.Noscript: "none",
}

// ComputedStyle implements Styler.
func (c *Cascade) ComputedStyle(el *html.Node, pseudo string) (Style, error) {
	if el == nil || el.Type != html.ElementNode {
		return nil, ErrNotElement
	}
	pseudo = normalizePseudo(pseudo)
	if c.cacheVersion != c.doc.version {
		clear(c.cache)
		clear(c.treeRules)
		c.cacheVersion = c.doc.version
	}
	key := styleKey{el, pseudo}
	if s, ok := c.cache[key]; ok {
		return s, nil
	}
	s := c.compute(el, pseudo)
	c.cache[key] = s
	return s, nil
}

// BoundingRect implements Styler. A text node without its own rect takes the
// rect of its parent element.
func (c *Cascade) BoundingRect(n *html.Node) (Rect, error) {
	if n == nil {
		return Rect{}, ErrNotElement
	}
	if r, ok := c.doc.rects.Get(n); ok {
		return r, nil
	}
	if n.Type == html.TextNode && n.Parent != nil {
		r, _ := c.doc.rects.Get(n.Parent)
		return r, nil
	}
	return Rect{}, nil
}

type candidate struct {
	decl        Declaration
	inline      bool
	specificity cascadia.Specificity
	order       int
}

func (c *Cascade) compute(el *html.Node, pseudo string) Style {
	var cands []candidate
	for _, r := range c.rulesFor(el) {
		if r.pseudo != pseudo || !r.sel.Match(el) {
			continue
		}
		for _, dc := range r.decls {
			cands = append(cands, candidate{decl: dc, specificity: r.specificity, order: r.order})
		}
	}
	if pseudo == "" {
		raw, _ := Attr(el, "style")
		for i, dc := range parseDeclarations(raw) {
			cands = append(cands, candidate{decl: dc, inline: true, order: i})
		}
	}
	slices.SortStableFunc(cands, compareCandidates)

	declared := make(map[string]string)
	for _, cd := range cands {
		expand(cd.decl.Property, cd.decl.Value, declared)
	}

	var parent Style
	if pseudo != "" {
		parent, _ = c.ComputedStyle(el, "")
	} else if p := c.inheritParent(el); p != nil {
		parent, _ = c.ComputedStyle(p, "")
	}

	out := make(Style)
	for _, prop := range []string{
		"display", "visibility", "opacity", "color", "background-color", "font-size",
		"overflow-x", "overflow-y", "position", "content", "clip-path", "transform",
	} {
		out[prop] = initialValue(prop)
		if inherited[prop] && parent != nil {
			out[prop] = parent[prop]
		}
	}
	out["display"] = uaDisplay(el, pseudo)
	if pseudo != "" {
		out["content"] = "none"
	}

	for prop, v := range declared {
		switch kw := strings.ToLower(v); kw {
		case "inherit", "initial", "unset":
			if parent != nil && (kw == "inherit" || (kw == "unset" && inherited[prop])) {
				v = parent[prop]
			} else {
				v = initialValue(prop)
			}
		}
		out[prop] = normalizeValue(prop, v)
	}
	return out
}

// inheritParent follows the flat tree: children of a shadow root inherit
// from the host.
func (c *Cascade) inheritParent(el *html.Node) *html.Node {
	if p := ParentElement(el); p != nil {
		return p
	}
	if el.Parent != nil {
		return c.doc.Host(el.Parent)
	}
	return nil
}

func compareCandidates(a, b candidate) int {
	if a.decl.Important != b.decl.Important {
		if a.decl.Important {
			return 1
		}
		return -1
	}
	if a.inline != b.inline {
		if a.inline {
			return 1
		}
		return -1
	}
	if a.specificity != b.specificity {
		if a.specificity.Less(b.specificity) {
			return -1
		}
		return 1
	}
	return a.order - b.order
}

func uaDisplay(el *html.Node, pseudo string) string {
	if pseudo != "" {
		return "inline"
	}
	if _, hidden := Attr(el, "hidden"); hidden {
		return "none"
	}
	if v, ok := blockTags[el.DataAtom]; ok {
		return v
	}
	return "inline"
}

// expand records a declaration, splitting the shorthands the evaluator
// reads longhands of.
func expand(prop, value string, into map[string]string) {
	switch prop {
	case "overflow":
		f := strings.Fields(value)
		if len(f) == 0 {
			return
		}
		into["overflow-x"] = f[0]
		into["overflow-y"] = f[len(f)-1]
	case "background":
		if n := NormalizeColor(value); n != value || strings.HasPrefix(n, "rgb") {
			into["background-color"] = n
		}
	default:
		into[prop] = value
	}
}

func normalizeValue(prop, v string) string {
	v = strings.TrimSpace(v)
	switch {
	case colorProps[prop]:
		return NormalizeColor(v)
	case prop == "opacity":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return strconv.FormatFloat(min(max(f, 0), 1), 'f', -1, 64)
		}
	case prop == "font-size":
		if v == "0" {
			return "0px"
		}
	case prop == "display" || prop == "visibility" || strings.HasPrefix(prop, "overflow"):
		return strings.ToLower(v)
	}
	return v
}

func normalizePseudo(p string) string {
	return strings.ToLower(strings.TrimLeft(p, ":"))
}

// rulesFor returns the author rules applying to the tree that contains el.
func (c *Cascade) rulesFor(el *html.Node) []styleRule {
	root := TreeRoot(el)
	if r, ok := c.treeRules[root]; ok {
		return r
	}
	var rules []styleRule
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type != html.ElementNode {
				continue
			}
			if ch.DataAtom == atom.Style {
				compiled, err := c.compileSheet(TextContent(ch))
				if err != nil {
					c.doc.logger.Debug("dom: skipping stylesheet", "error", err)
					continue
				}
				rules = append(rules, compiled...)
				continue
			}
			walk(ch)
		}
	}
	walk(root)
	if root == c.doc.root {
		rules = append(rules, c.extra...)
	}
	// Source order across sheets follows their position in the list.
	for i := range rules {
		rules[i].order = i
	}
	c.treeRules[root] = rules
	return rules
}

func (c *Cascade) compileSheet(src string) ([]styleRule, error) {
	if r, ok := c.sheets[src]; ok {
		return slices.Clone(r), nil
	}
	sheet, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	var out []styleRule
	var add func([]*css.Rule)
	add = func(rules []*css.Rule) {
		for _, r := range rules {
			if r.Kind == css.AtRule {
				if (r.Name == "@media" || r.Name == "@supports") && !strings.Contains(r.Prelude, "print") {
					add(r.Rules)
				}
				continue
			}
			decls := fromDouceur(r.Declarations)
			for _, s := range r.Selectors {
				sel, err := cascadia.ParseWithPseudoElement(strings.TrimSpace(s))
				if err != nil {
					continue
				}
				out = append(out, styleRule{
					sel:         sel,
					pseudo:      sel.PseudoElement(),
					specificity: sel.Specificity(),
					decls:       decls,
				})
			}
		}
	}
	add(sheet.Rules)
	c.sheets[src] = out
	return slices.Clone(out), nil
}
