// Package hide applies and defends the style overrides that suppress an
// element. Once hidden, an element is watched: any later write to its style
// attribute that changes an override is undone.
package hide

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/debuglog"
	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/internal/weakset"
)

// Property is one style override.
type Property struct {
	Name  string
	Value string
}

// DefaultProperties is display: none.
func DefaultProperties() []Property {
	return []Property{{Name: "display", Value: "none"}}
}

// Enforcer keeps elements hidden. Membership is weak: a hidden element that
// leaves the page and is collected drops out of the registry.
type Enforcer struct {
	host  dom.Host
	props []Property
	log   *debuglog.Logger

	hidden   *weakset.Set[html.Node]
	watchers *weakset.Map[html.Node, *dom.MutationObserver]

	// OnHide, when set, is called after an element is hidden for the first
	// time. OnReassert is called each time a drifted override is restored.
	OnHide     func(el *html.Node)
	OnReassert func(el *html.Node, prop string)
}

// New creates an Enforcer applying props, or DefaultProperties when props
// is empty.
func New(host dom.Host, props []Property, log *debuglog.Logger) *Enforcer {
	if len(props) == 0 {
		props = DefaultProperties()
	}
	if log == nil {
		log = debuglog.Nop()
	}
	return &Enforcer{
		host:     host,
		props:    props,
		log:      log,
		hidden:   weakset.NewSet[html.Node](),
		watchers: weakset.NewMap[html.Node, *dom.MutationObserver](),
	}
}

type applied struct {
	name, value, priority string
}

// Hide suppresses el. It returns false, without touching the element, when
// el is already hidden or is not an element.
func (e *Enforcer) Hide(el *html.Node) bool {
	if el == nil || el.Type != html.ElementNode {
		return false
	}
	if !e.hidden.Add(el) {
		return false
	}

	style := e.host.InlineStyle(el)
	want := make([]applied, 0, len(e.props))
	for _, p := range e.props {
		if err := style.SetProperty(p.Name, p.Value, "important"); err != nil {
			e.log.Error("hide: set property failed", "property", p.Name, "error", err)
			continue
		}
		want = append(want, applied{
			name:     p.Name,
			value:    style.PropertyValue(p.Name),
			priority: style.PropertyPriority(p.Name),
		})
	}

	// The callback reaches the element through the record target only, so
	// the observer never pins it.
	obs := e.host.NewMutationObserver(func(recs []dom.MutationRecord, _ *dom.MutationObserver) {
		for _, r := range recs {
			e.reassert(r.Target, want)
		}
	})
	if err := obs.Observe(el, dom.ObserveOptions{Attributes: true, AttributeFilter: []string{"style"}}); err != nil {
		e.log.Error("hide: observe failed", "error", err)
	} else {
		e.watchers.Put(el, obs)
	}

	if e.OnHide != nil {
		e.OnHide(el)
	}
	return true
}

func (e *Enforcer) reassert(el *html.Node, want []applied) {
	if !e.hidden.Has(el) {
		return
	}
	style := e.host.InlineStyle(el)
	for _, a := range want {
		if style.PropertyValue(a.name) == a.value && style.PropertyPriority(a.name) == a.priority {
			continue
		}
		if err := style.SetProperty(a.name, a.value, a.priority); err != nil {
			e.log.Error("hide: reassert failed", "property", a.name, "error", err)
			continue
		}
		e.log.Info("hide: reasserted", "property", a.name)
		if e.OnReassert != nil {
			e.OnReassert(el, a.name)
		}
	}
}

// Hidden reports whether el is under enforcement.
func (e *Enforcer) Hidden(el *html.Node) bool {
	return e.hidden.Has(el)
}

// Count returns the number of live hidden elements.
func (e *Enforcer) Count() int {
	return e.hidden.Len()
}

// Release stops defending el. Applied overrides stay in place.
func (e *Enforcer) Release(el *html.Node) {
	if obs, ok := e.watchers.Get(el); ok {
		obs.Disconnect()
		e.watchers.Delete(el)
	}
	e.hidden.Delete(el)
}

// ReleaseAll stops defending every element.
func (e *Enforcer) ReleaseAll() {
	var els []*html.Node
	e.watchers.Range(func(el *html.Node, _ *dom.MutationObserver) bool {
		els = append(els, el)
		return true
	})
	for _, el := range els {
		e.Release(el)
	}
}
