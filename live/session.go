package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domshield/filter"
	"github.com/hazyhaar/domshield/internal/idgen"
	"github.com/hazyhaar/domshield/live/internal/browser"
	"github.com/hazyhaar/domshield/live/internal/config"
	"github.com/hazyhaar/domshield/live/internal/mirror"
	"github.com/hazyhaar/domshield/live/report"
)

// session shields one tab for one run.
type session struct {
	s      *Shield
	page   config.PageConfig
	rules  []filter.Rule
	runID  string
	tab    *browser.Tab
	mirror *mirror.Mirror
	track  *tracker

	rt       *filter.Runtime // loop only
	lastPush int64           // loop only

	cancel context.CancelFunc
	done   chan struct{}
	settle *time.Timer
	once   sync.Once
}

func (s *Shield) open(ctx context.Context, page config.PageConfig, rules []filter.Rule) (*session, error) {
	tab, err := browser.OpenTab(ctx, s.mgr, page.URL, page.ID, browser.ParseMode(page.Mode))
	if err != nil {
		return nil, fmt.Errorf("domshield: open tab: %w", err)
	}

	sess := &session{
		s:     s,
		page:  page,
		rules: rules,
		runID: idgen.Run(),
		tab:   tab,
		done:  make(chan struct{}),
	}
	log := s.log.With("page", page.ID)
	sess.mirror = mirror.New(tab.Page, mirror.Config{Logger: log, OnFlush: sess.onFlush})
	if err := sess.mirror.Load(); err != nil {
		tab.Close()
		return nil, err
	}
	sess.track = newTracker(sess.mirror.Document(), sess.runID, page.ID, page.URL, func(r report.Report) { s.emit(r) })

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.cancel = cancel
	sess.mirror.Subscribe(sctx, tab.Page)
	go func() {
		defer close(sess.done)
		if err := sess.mirror.Run(sctx); err != nil {
			log.Error("domshield: mirror stopped", "error", err)
		}
	}()

	sess.mirror.Post(func() { sess.start(log) })
	if page.Winners > 0 {
		sess.settle = time.AfterFunc(page.Settle, sess.endRace)
	}
	s.emit(sess.track.summary())
	return sess, nil
}

// start runs on the loop.
func (sess *session) start(log *slog.Logger) {
	cfg := sess.s.runtimeConfig(sess.s.log.With("page", sess.page.ID, "run_id", sess.runID))
	cfg.RaceHooks = sess.track.hooks()
	rt := filter.New(sess.mirror.Document(), cfg)
	sess.rt = rt

	if sess.page.Winners > 0 {
		if err := rt.Race("start", sess.page.Winners); err != nil {
			log.Error("domshield: race start", "error", err)
		}
	}
	for _, r := range sess.track.attach(rt, sess.rules) {
		if _, err := rt.Run(r); err != nil {
			log.Error("domshield: start rule", "rule", r.Name, "error", err)
		}
	}
}

// endRace closes the race session so queued wins are settled.
func (sess *session) endRace() {
	sess.mirror.Post(func() {
		if sess.rt == nil {
			return
		}
		sess.rt.Race("end", 0)
		sess.s.emit(sess.track.summary())
	})
}

func (sess *session) onFlush(elapsed time.Duration, err error) {
	m := sess.s.metrics
	if m == nil {
		return
	}
	m.ObserveFlush(elapsed, err)
	p := sess.mirror.Stats().Pushes
	m.AddPushes(p - sess.lastPush)
	sess.lastPush = p
}

// stop ends the loop, releases enforcement, closes the tab and emits the
// final summary. Safe to call more than once.
func (sess *session) stop() {
	sess.once.Do(func() {
		if sess.settle != nil {
			sess.settle.Stop()
		}
		sess.cancel()
		<-sess.done
		// The loop has exited; the runtime is ours now.
		if sess.rt != nil {
			sess.rt.Close()
		}
		if err := sess.tab.Close(); err != nil {
			sess.s.log.Debug("domshield: close tab", "id", sess.page.ID, "error", err)
		}
		sess.s.emit(sess.track.finish())
	})
}
