package dom

import (
	"errors"
	"slices"
	"weak"

	"golang.org/x/net/html"
)

// ErrObserveOptions is returned by Observe when no record type is selected.
var ErrObserveOptions = errors.New("dom: observe options select no record type")

// RecordType names the kind of a mutation record.
type RecordType string

const (
	RecordChildList     RecordType = "childList"
	RecordAttributes    RecordType = "attributes"
	RecordCharacterData RecordType = "characterData"
)

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type            RecordType
	Target          *html.Node
	AddedNodes      []*html.Node
	RemovedNodes    []*html.Node
	PreviousSibling *html.Node
	NextSibling     *html.Node
	AttributeName   string
	OldValue        string
}

// ObserveOptions selects which mutations an observer receives.
type ObserveOptions struct {
	ChildList             bool
	Attributes            bool
	CharacterData         bool
	Subtree               bool
	AttributeFilter       []string
	AttributeOldValue     bool
	CharacterDataOldValue bool
}

// MutationCallback receives the records batched since the previous delivery.
type MutationCallback func(records []MutationRecord, o *MutationObserver)

// MutationObserver queues records for the targets it observes and hands them
// to its callback at the next Flush of the owning Document.
type MutationObserver struct {
	doc   *Document
	cb    MutationCallback
	regs  []registration
	queue []MutationRecord
}

// registration holds its target weakly so an observer never keeps a removed
// node alive.
type registration struct {
	target weak.Pointer[html.Node]
	opts   ObserveOptions
}

// NewMutationObserver creates an observer bound to d.
func (d *Document) NewMutationObserver(cb MutationCallback) *MutationObserver {
	return &MutationObserver{doc: d, cb: cb}
}

// Observe starts (or reconfigures) observation of target.
func (o *MutationObserver) Observe(target *html.Node, opts ObserveOptions) error {
	if target == nil {
		return ErrNotElement
	}
	if len(opts.AttributeFilter) > 0 || opts.AttributeOldValue {
		opts.Attributes = true
	}
	if opts.CharacterDataOldValue {
		opts.CharacterData = true
	}
	if !opts.ChildList && !opts.Attributes && !opts.CharacterData {
		return ErrObserveOptions
	}

	key := weak.Make(target)
	replaced := false
	for i := range o.regs {
		if o.regs[i].target == key {
			o.regs[i].opts = opts
			replaced = true
			break
		}
	}
	if !replaced {
		o.regs = append(o.regs, registration{target: key, opts: opts})
	}
	if !slices.Contains(o.doc.observers, o) {
		o.doc.observers = append(o.doc.observers, o)
	}
	return nil
}

// Disconnect stops all observation and drops queued records.
func (o *MutationObserver) Disconnect() {
	o.regs = nil
	o.queue = nil
	o.doc.observers = slices.DeleteFunc(o.doc.observers, func(x *MutationObserver) bool { return x == o })
}

// TakeRecords empties and returns the queue.
func (o *MutationObserver) TakeRecords() []MutationRecord {
	q := o.queue
	o.queue = nil
	return q
}

// Observing reports whether the observer still has live registrations.
func (o *MutationObserver) Observing() bool {
	for _, r := range o.regs {
		if r.target.Value() != nil {
			return true
		}
	}
	return false
}

func (d *Document) queueRecord(rec MutationRecord) {
	for _, o := range d.observers {
		o.offer(rec)
	}
}

// offer queues rec at most once, honouring the most permissive matching
// registration for old values.
func (o *MutationObserver) offer(rec MutationRecord) {
	matched := false
	wantOld := false
	live := o.regs[:0]
	for _, r := range o.regs {
		node := r.target.Value()
		if node == nil {
			continue
		}
		live = append(live, r)
		if !r.accepts(node, rec) {
			continue
		}
		matched = true
		switch rec.Type {
		case RecordAttributes:
			wantOld = wantOld || r.opts.AttributeOldValue
		case RecordCharacterData:
			wantOld = wantOld || r.opts.CharacterDataOldValue
		}
	}
	o.regs = live
	if !matched {
		return
	}
	if !wantOld {
		rec.OldValue = ""
	}
	o.queue = append(o.queue, rec)
}

func (r registration) accepts(node *html.Node, rec MutationRecord) bool {
	if node != rec.Target && !(r.opts.Subtree && Contains(node, rec.Target)) {
		return false
	}
	switch rec.Type {
	case RecordChildList:
		return r.opts.ChildList
	case RecordCharacterData:
		return r.opts.CharacterData
	case RecordAttributes:
		if !r.opts.Attributes {
			return false
		}
		return len(r.opts.AttributeFilter) == 0 || slices.Contains(r.opts.AttributeFilter, rec.AttributeName)
	}
	return false
}
