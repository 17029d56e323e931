// Package visibility decides whether elements and their text are actually
// rendered to the user, seeing through the usual cloaking tricks: hidden
// ancestors, zero opacity or font size, text painted in the background
// colour, clipped overflow and generated pseudo-element content.
package visibility

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/debuglog"
	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/pattern"
)

// StylePattern hides text when the computed value of Property matches
// Pattern.
type StylePattern struct {
	Property string
	Pattern  *pattern.Pattern
}

// Options tunes text visibility and containment.
type Options struct {
	// HiddenText lists style values that make text invisible.
	HiddenText []StylePattern
	// AllowSameColor disables the color == background-color check.
	AllowSameColor bool
	// CheckContained requires text to sit inside the top-level element's
	// box when no clipping ancestor is active.
	CheckContained bool
	// BoxMargin widens the container box on all sides, in pixels.
	BoxMargin float64
}

// DefaultHiddenText returns opacity 0, font-size 0px and a fully
// transparent colour.
func DefaultHiddenText() []StylePattern {
	return []StylePattern{
		{Property: "opacity", Pattern: pattern.MustCompile(`/^0$/`)},
		{Property: "font-size", Pattern: pattern.MustCompile(`/^0px$/`)},
		{Property: "color", Pattern: pattern.MustCompile(`/^rgba\(0, 0, 0, 0\)$/`)},
	}
}

// DefaultOptions returns Options with DefaultHiddenText.
func DefaultOptions() Options {
	return Options{HiddenText: DefaultHiddenText()}
}

// Evaluator reads styles and geometry from a host.
type Evaluator struct {
	host dom.Host
	opts Options
	log  *debuglog.Logger
}

// New creates an Evaluator. A nil HiddenText in opts means the defaults;
// pass an empty non-nil slice to disable style patterns.
func New(host dom.Host, opts Options, log *debuglog.Logger) *Evaluator {
	if opts.HiddenText == nil {
		opts.HiddenText = DefaultHiddenText()
	}
	if log == nil {
		log = debuglog.Nop()
	}
	return &Evaluator{host: host, opts: opts, log: log}
}

// Options returns the evaluator's options.
func (e *Evaluator) Options() Options { return e.opts }

func (e *Evaluator) style(el *html.Node, pseudo string) dom.Style {
	s, err := e.host.ComputedStyle(el, pseudo)
	if err != nil {
		e.log.Error("visibility: computed style unavailable", "error", err)
		return nil
	}
	return s
}

// IsVisible checks el and, when stopAt is set, every ancestor up to stopAt.
// style may carry an already computed style for el. Reaching the top of a
// shadow tree continues at the last host in rootParents; reaching the top of
// a tree with no boundary left counts as visible, which is also the answer
// for detached subtrees.
func (e *Evaluator) IsVisible(el *html.Node, style dom.Style, stopAt *html.Node, rootParents []*html.Node) bool {
	for el != nil {
		if style == nil {
			style = e.style(el, "")
		}
		if style.Get("display") == "none" {
			return false
		}
		switch style.Get("visibility") {
		case "hidden", "collapse":
			return false
		}
		if stopAt == nil || stopAt == el {
			return true
		}

		parent := dom.ParentElement(el)
		if parent == nil {
			if len(rootParents) == 0 {
				return true
			}
			parent = rootParents[len(rootParents)-1]
			rootParents = rootParents[:len(rootParents)-1]
		}
		el, style = parent, nil
	}
	return true
}

// IsTextVisible applies the hidden-text heuristics to a computed style.
func (e *Evaluator) IsTextVisible(style dom.Style) bool {
	for _, sp := range e.opts.HiddenText {
		if sp.Pattern.MatchString(style.Get(sp.Property)) {
			return false
		}
	}
	if !e.opts.AllowSameColor && style.Get("color") != "" && style.Get("color") == style.Get("background-color") {
		return false
	}
	return true
}

// IsContained reports whether child's box lies inside parent's box grown by
// margin on every side. Bounds are inclusive.
func (e *Evaluator) IsContained(child, parent *html.Node, margin float64) bool {
	c, err := e.host.BoundingRect(child)
	if err != nil {
		return false
	}
	p, err := e.host.BoundingRect(parent)
	if err != nil {
		return false
	}
	return Contained(c, p, margin)
}

// Contained is the box test behind IsContained.
func Contained(child, parent dom.Rect, margin float64) bool {
	return child.Left() >= parent.Left()-margin &&
		child.Right() <= parent.Right()+margin &&
		child.Top() >= parent.Top()-margin &&
		child.Bottom() <= parent.Bottom()+margin
}
