package filter

import (
	"errors"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/internal/weakset"
	"github.com/hazyhaar/domshield/race"
	"github.com/hazyhaar/domshield/selector"
)

// ErrNoPredicate is returned by Run for a rule without Match or MatchAsync.
var ErrNoPredicate = errors.New("filter: rule has no predicate")

// ErrNoSelector is returned by Run for a rule without a selector.
var ErrNoSelector = errors.New("filter: rule has no selector")

// Predicate decides whether a candidate matches.
type Predicate func(rt *Runtime, m selector.Match) bool

// AsyncPredicate decides later. done may be called from any goroutine; the
// answer is applied on the document's loop.
type AsyncPredicate func(rt *Runtime, m selector.Match, done func(matched bool))

// Rule is one filter. Selector picks what to hide, SearchSelector (default:
// Selector) picks the candidates the predicate inspects; the hidden element
// is the closest ancestor of a matching candidate selected by Selector.
type Rule struct {
	Name           string
	Selector       string
	SearchSelector string
	Match          Predicate
	MatchAsync     AsyncPredicate
	// OnMatch runs after each successful match.
	OnMatch func(ev MatchEvent)
	// Scope narrows observation and search. Default: the document.
	Scope *html.Node
}

// Runner executes one Rule.
type Runner struct {
	rt     *Runtime
	rule   Rule
	name   string
	sel    string
	search *selector.Program
	scope  *html.Node

	seen     *weakset.Set[html.Node]
	inflight *weakset.Set[html.Node]
	observer *dom.MutationObserver
	token    race.Token

	stopped atomic.Bool
	matches atomic.Int64
}

func newRunner(rt *Runtime, rule Rule) (*Runner, error) {
	if rule.Selector == "" {
		return nil, ErrNoSelector
	}
	if rule.Match == nil && rule.MatchAsync == nil {
		return nil, ErrNoPredicate
	}
	search := rule.SearchSelector
	if search == "" {
		search = rule.Selector
	}
	name := rule.Name
	if name == "" {
		name = rule.Selector
	}
	scope := rule.Scope
	if scope == nil {
		scope = rt.host.Root()
	}
	return &Runner{
		rt:       rt,
		rule:     rule,
		name:     name,
		sel:      rule.Selector,
		search:   selector.Parse(search),
		scope:    scope,
		seen:     weakset.NewSet[html.Node](),
		inflight: weakset.NewSet[html.Node](),
	}, nil
}

func (r *Runner) start() error {
	r.token = r.rt.race.Register(r.name, r.Stop)
	r.observer = r.rt.host.NewMutationObserver(func([]dom.MutationRecord, *dom.MutationObserver) {
		r.scan()
	})
	if err := r.observer.Observe(r.scope, dom.ObserveOptions{ChildList: true, CharacterData: true, Subtree: true}); err != nil {
		return err
	}
	r.scan()
	return nil
}

// Name returns the rule name.
func (r *Runner) Name() string { return r.name }

// Matches returns the number of successful matches.
func (r *Runner) Matches() int64 { return r.matches.Load() }

// Stopped reports whether the runner was stopped or cancelled.
func (r *Runner) Stopped() bool { return r.stopped.Load() }

// Stop disconnects the runner. Async answers arriving later are ignored.
// Safe to call more than once and from any goroutine; the disconnect itself
// happens on the document's loop.
func (r *Runner) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	r.rt.log.Info("filter: runner stopped", "rule", r.name)
	r.rt.host.Post(func() {
		if r.observer != nil {
			r.observer.Disconnect()
		}
	})
}

func (r *Runner) scan() {
	if r.stopped.Load() {
		return
	}
	for _, m := range r.rt.resolver.Resolve(r.search, r.scope, true) {
		if r.stopped.Load() {
			return
		}
		el := m.Element
		if r.seen.Has(el) {
			continue
		}
		if r.rule.MatchAsync != nil {
			r.evaluateAsync(m)
			continue
		}
		if r.rule.Match(r.rt, m) {
			r.succeed(m)
		}
	}
}

func (r *Runner) evaluateAsync(m selector.Match) {
	el := m.Element
	if !r.inflight.Add(el) {
		return
	}
	var once atomic.Bool
	r.rule.MatchAsync(r.rt, m, func(matched bool) {
		if once.Swap(true) {
			return
		}
		r.rt.host.Post(func() {
			r.inflight.Delete(el)
			if r.stopped.Load() || !matched {
				return
			}
			r.succeed(m)
		})
	})
}

func (r *Runner) succeed(m selector.Match) {
	el := m.Element
	if !r.seen.Add(el) {
		return
	}
	r.matches.Add(1)
	r.token.Win()

	target := r.rt.resolver.Closest(el, r.sel, m.RootParents)
	hidden := false
	if target != nil {
		hidden = r.rt.enforcer.Hide(target)
	} else {
		r.rt.log.Warn("filter: no element to hide", "rule", r.name, "selector", r.sel)
	}
	r.rt.log.Success("filter: matched", "rule", r.name, "hidden", hidden)

	ev := MatchEvent{Rule: r.name, Element: el, Target: target, Hidden: hidden, Match: m}
	if r.rule.OnMatch != nil {
		r.rule.OnMatch(ev)
	}
	if r.rt.cfg.OnMatch != nil {
		r.rt.cfg.OnMatch(ev)
	}
}
