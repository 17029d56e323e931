package mirror

import (
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
)

// watch observes style attribute writes under root.
func (m *Mirror) watch(root *html.Node) {
	err := m.writer.Observe(root, dom.ObserveOptions{
		Attributes:      true,
		AttributeFilter: []string{"style"},
		Subtree:         true,
	})
	if err != nil {
		m.log.Warn("mirror: observe styles", "error", err)
	}
}

// pushStyles writes style attributes changed in the document, and not yet
// held by the browser, back to the page.
func (m *Mirror) pushStyles(records []dom.MutationRecord, _ *dom.MutationObserver) {
	done := make(map[*html.Node]bool, len(records))
	for _, rec := range records {
		el := rec.Target
		if done[el] {
			continue
		}
		done[el] = true

		id, ok := m.ids[el]
		if !ok {
			continue
		}
		val, has := dom.Attr(el, "style")
		if prev, known := m.synced[el]; known && prev == val {
			continue
		}
		if !has {
			if _, known := m.synced[el]; !known {
				continue
			}
		}

		var err error
		if has {
			err = proto.DOMSetAttributeValue{NodeID: id, Name: "style", Value: val}.Call(m.client)
		} else {
			err = proto.DOMRemoveAttribute{NodeID: id, Name: "style"}.Call(m.client)
		}
		if err != nil {
			m.log.Warn("mirror: push style", "node", id, "error", err)
			continue
		}
		if has {
			m.synced[el] = val
		} else {
			delete(m.synced, el)
		}
		m.pushes.Add(1)
	}
}
