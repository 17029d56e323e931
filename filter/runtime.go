// Package filter runs cosmetic filter rules against a live document. A
// Runtime bundles the selector resolver, the visibility evaluator, the hide
// enforcer and a race coordinator for one document; Run starts a Runner per
// rule that re-evaluates on every mutation batch until it is stopped or
// loses a race.
package filter

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/debuglog"
	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/hide"
	"github.com/hazyhaar/domshield/race"
	"github.com/hazyhaar/domshield/selector"
	"github.com/hazyhaar/domshield/visibility"
)

// Config configures a Runtime.
type Config struct {
	// Logger receives runtime logs and, when Debug is set, the debug
	// surface. Default: slog.Default().
	Logger *slog.Logger
	Debug  bool

	// HideProperties overrides the hide enforcer's style overrides.
	HideProperties []hide.Property
	Visibility     visibility.Options

	// RaceHooks observe race outcomes.
	RaceHooks race.Hooks
	// OnMatch is called for every successful match of any runner.
	OnMatch func(ev MatchEvent)
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// MatchEvent describes one successful match.
type MatchEvent struct {
	Rule    string
	Element *html.Node
	Target  *html.Node
	Hidden  bool
	Match   selector.Match
}

// Runtime is the author-facing surface for one document. Like the document
// it serves, it is driven from the document's loop; RaceWinner tokens and
// Race may be used from any goroutine.
type Runtime struct {
	host       dom.Host
	cfg        Config
	log        *debuglog.Logger
	resolver   *selector.Resolver
	visibility *visibility.Evaluator
	enforcer   *hide.Enforcer
	race       *race.Coordinator

	mu      sync.Mutex
	runners []*Runner
}

// New creates a Runtime over host.
func New(host dom.Host, cfg Config) *Runtime {
	cfg.defaults()
	log := debuglog.New(cfg.Logger, cfg.Debug)
	return &Runtime{
		host:       host,
		cfg:        cfg,
		log:        log,
		resolver:   selector.NewResolver(host, log),
		visibility: visibility.New(host, cfg.Visibility, log),
		enforcer:   hide.New(host, cfg.HideProperties, log),
		race:       race.New(cfg.Logger, cfg.RaceHooks),
	}
}

// Host returns the document the runtime serves.
func (rt *Runtime) Host() dom.Host { return rt.host }

// Debug returns the debug logger. Toggle it with Enable.
func (rt *Runtime) Debug() *debuglog.Logger { return rt.log }

// Enforcer exposes the hide registry.
func (rt *Runtime) Enforcer() *hide.Enforcer { return rt.enforcer }

// Visibility exposes the evaluator.
func (rt *Runtime) Visibility() *visibility.Evaluator { return rt.visibility }

// ResolveSelector resolves an extended selector under scope (nil means the
// document).
func (rt *Runtime) ResolveSelector(sel string, scope *html.Node, withRoots bool) []selector.Match {
	return rt.resolver.ResolveString(sel, scope, withRoots)
}

// FindClosest finds the nearest ancestor of el matching sel across the
// boundaries in rootParents.
func (rt *Runtime) FindClosest(el *html.Node, sel string, rootParents []*html.Node) *html.Node {
	return rt.resolver.Closest(el, sel, rootParents)
}

// IsVisible reports whether el and its ancestors up to stopAt are rendered.
func (rt *Runtime) IsVisible(el, stopAt *html.Node, rootParents []*html.Node) bool {
	return rt.visibility.IsVisible(el, nil, stopAt, rootParents)
}

// VisibleContent returns the text of el a user can see.
func (rt *Runtime) VisibleContent(el, closest *html.Node, rootParents []*html.Node) string {
	return rt.visibility.VisibleContent(el, closest, rootParents)
}

// Hide hides el. It returns false when el was already hidden.
func (rt *Runtime) Hide(el *html.Node) bool {
	return rt.enforcer.Hide(el)
}

// Race dispatches a race action: "start" with the number of winners, or
// "end" / "finish" / "stop".
func (rt *Runtime) Race(action string, n int) error {
	if err := rt.race.Do(action, n); err != nil {
		rt.log.Error("filter: race misuse", "action", action, "error", err)
		return err
	}
	return nil
}

// RaceWinner registers a participant in the open race session.
func (rt *Runtime) RaceWinner(name string, onCancel func()) race.Token {
	return rt.race.Register(name, onCancel)
}

// Run starts a runner for rule.
func (rt *Runtime) Run(rule Rule) (*Runner, error) {
	r, err := newRunner(rt, rule)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	rt.runners = append(rt.runners, r)
	rt.mu.Unlock()
	if err := r.start(); err != nil {
		return nil, fmt.Errorf("filter: start %q: %w", r.name, err)
	}
	return r, nil
}

// Runners returns the runners started so far.
func (rt *Runtime) Runners() []*Runner {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]*Runner(nil), rt.runners...)
}

// Close stops every runner and releases hidden elements from enforcement.
func (rt *Runtime) Close() {
	for _, r := range rt.Runners() {
		r.Stop()
	}
	rt.enforcer.ReleaseAll()
}
