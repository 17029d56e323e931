package live

import (
	"slices"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/filter"
	"github.com/hazyhaar/domshield/internal/idgen"
	"github.com/hazyhaar/domshield/internal/weakset"
	"github.com/hazyhaar/domshield/live/report"
	"github.com/hazyhaar/domshield/race"
)

// tracker turns runtime callbacks into reports and keeps the run summary.
// Match and reassert callbacks arrive on the document loop; race hooks may
// arrive from any goroutine.
type tracker struct {
	doc  *dom.Document
	emit func(report.Report)
	now  func() time.Time

	// owners maps hidden elements to the rule that hid them, for reasserts.
	owners *weakset.Map[html.Node, string]

	mu  sync.Mutex
	sum report.Summary
}

func newTracker(doc *dom.Document, runID, pageID, pageURL string, emit func(report.Report)) *tracker {
	t := &tracker{
		doc:    doc,
		emit:   emit,
		now:    time.Now,
		owners: weakset.NewMap[html.Node, string](),
	}
	t.sum = report.Summary{RunID: runID, PageID: pageID, PageURL: pageURL, Started: t.now().UTC()}
	return t
}

func (t *tracker) report(kind report.Kind, rule string) report.Report {
	return report.Report{
		ID:      idgen.New(),
		RunID:   t.sum.RunID,
		PageID:  t.sum.PageID,
		PageURL: t.sum.PageURL,
		Kind:    kind,
		Rule:    rule,
		Time:    t.now().UTC(),
	}
}

func (t *tracker) located(r report.Report, el *html.Node) report.Report {
	r.XPath = t.doc.XPath(el)
	r.Tag = el.Data
	return r
}

// hooks observes race outcomes.
func (t *tracker) hooks() race.Hooks {
	return race.Hooks{
		Won: func(name string) {
			t.mu.Lock()
			t.sum.Winners = append(t.sum.Winners, name)
			t.mu.Unlock()
			t.emit(t.report(report.KindWon, name))
		},
		Cancelled: func(name string) {
			t.mu.Lock()
			t.sum.Cancelled = append(t.sum.Cancelled, name)
			t.mu.Unlock()
			t.emit(t.report(report.KindCancelled, name))
		},
	}
}

// attach wires rt's enforcer and returns rules with match hooks installed.
func (t *tracker) attach(rt *filter.Runtime, rules []filter.Rule) []filter.Rule {
	rt.Enforcer().OnReassert = t.onReassert
	out := make([]filter.Rule, len(rules))
	for i, r := range rules {
		r.OnMatch = t.onMatch(r.Selector)
		out[i] = r
	}
	t.mu.Lock()
	t.sum.Rules += len(rules)
	t.mu.Unlock()
	return out
}

func (t *tracker) onMatch(sel string) func(filter.MatchEvent) {
	return func(ev filter.MatchEvent) {
		t.mu.Lock()
		t.sum.Matches++
		if ev.Hidden {
			t.sum.Hidden++
		}
		t.mu.Unlock()
		if !ev.Hidden || ev.Target == nil {
			return
		}
		t.owners.Put(ev.Target, ev.Rule)
		r := t.located(t.report(report.KindHide, ev.Rule), ev.Target)
		r.Selector = sel
		t.emit(r)
	}
}

func (t *tracker) onReassert(el *html.Node, _ string) {
	t.mu.Lock()
	t.sum.Reasserts++
	t.mu.Unlock()
	rule, _ := t.owners.Get(el)
	t.emit(t.located(t.report(report.KindReassert, rule), el))
}

// summary returns a copy of the current summary.
func (t *tracker) summary() report.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sum
	s.Winners = slices.Clone(s.Winners)
	s.Cancelled = slices.Clone(s.Cancelled)
	return s
}

// finish stamps the end time once and returns the final summary.
func (t *tracker) finish() report.Summary {
	t.mu.Lock()
	if t.sum.Ended.IsZero() {
		t.sum.Ended = t.now().UTC()
	}
	t.mu.Unlock()
	return t.summary()
}
