// Package live runs cosmetic filter rules against real browser pages. It
// orchestrates Chrome as a disposable component: each configured page is
// opened in a tab, mirrored into a dom.Document, and shielded by a filter
// runtime whose hides are written back to the page. Enforcement events are
// emitted to sinks (stdout, journal, webhook, callback, metrics).
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/domshield/filter"
	"github.com/hazyhaar/domshield/hide"
	"github.com/hazyhaar/domshield/live/internal/browser"
	"github.com/hazyhaar/domshield/live/internal/config"
	"github.com/hazyhaar/domshield/live/internal/sink"
	"github.com/hazyhaar/domshield/live/internal/status"
	"github.com/hazyhaar/domshield/live/report"
	"github.com/hazyhaar/domshield/visibility"
)

// ErrClosed is returned once the shield has been stopped.
var ErrClosed = errors.New("domshield: shield closed")

// maxParallelOpen bounds concurrent tab opens.
const maxParallelOpen = 4

// emitBuffer is the capacity of the report queue between the page loops and
// the sinks.
const emitBuffer = 1024

// Shield is the top-level orchestrator. It manages the browser, one session
// per page, and the sinks. Create one per domshield instance.
type Shield struct {
	cfg     *config.Config
	log     *slog.Logger
	mgr     *browser.Manager
	sinkR   *sink.Router
	metrics *status.Metrics

	hideProps []hide.Property
	vis       visibility.Options

	out     chan any // report.Report or report.Summary
	drained chan struct{}

	mu       sync.Mutex
	sessions map[string]*session
	pages    map[string]config.PageConfig
	closed   bool
}

// New creates a Shield from configuration. Every configured rule is
// compiled here, so a bad rule fails before any browser starts. A *Metrics
// among sinks also receives flush timings.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) (*Shield, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range cfg.Pages {
		if _, err := compileRules(p.Rules); err != nil {
			return nil, fmt.Errorf("domshield: page %s: %w", p.ID, err)
		}
	}
	vis, err := visibilityOptions(cfg)
	if err != nil {
		return nil, err
	}

	s := &Shield{
		cfg: cfg,
		log: logger,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Headful:          cfg.Browser.Headful,
			MemoryLimit:      cfg.Browser.MemoryLimit,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Mode:             browser.ParseMode(cfg.Browser.Mode),
			NavigateTimeout:  cfg.Browser.NavigateTimeout,
			Logger:           logger,
		}),
		sinkR:     sink.NewRouter(logger, sinks...),
		hideProps: hideProperties(cfg),
		vis:       vis,
		out:       make(chan any, emitBuffer),
		drained:   make(chan struct{}),
		sessions:  make(map[string]*session),
		pages:     make(map[string]config.PageConfig),
	}
	for _, sk := range sinks {
		if m, ok := sk.(*status.Metrics); ok {
			s.metrics = m
		}
	}
	go s.drain()
	return s, nil
}

// Start launches the browser and shields every configured page. Pages that
// fail to open are logged and skipped.
func (s *Shield) Start(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if _, err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("domshield: start browser: %w", err)
	}
	s.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: s.stopSessions,
		AfterRecycle:  func(*rod.Browser) { s.reopen(ctx) },
	})
	s.openAll(ctx, s.cfg.Pages)
	return nil
}

// Run is Start followed by Stop once ctx is done.
func (s *Shield) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Shield) openAll(ctx context.Context, pages []config.PageConfig) {
	var g errgroup.Group
	g.SetLimit(maxParallelOpen)
	for _, p := range pages {
		g.Go(func() error {
			if err := s.ShieldPage(ctx, p); err != nil {
				s.log.Error("domshield: failed to shield page", "url", p.URL, "id", p.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// ShieldPage opens one page and starts its rules. A page already shielded
// under the same ID is stopped first.
func (s *Shield) ShieldPage(ctx context.Context, page PageConfig) error {
	rules, err := compileRules(page.Rules)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	sess, err := s.open(ctx, page, rules)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.stop()
		return ErrClosed
	}
	old := s.sessions[page.ID]
	s.sessions[page.ID] = sess
	s.pages[page.ID] = page
	s.mu.Unlock()
	if old != nil {
		old.stop()
	}

	s.log.Info("domshield: shielding page", "url", page.URL, "id", page.ID, "run_id", sess.runID, "rules", len(rules))
	return nil
}

// Unshield stops the session for pageID. It reports whether one existed.
func (s *Shield) Unshield(pageID string) bool {
	s.mu.Lock()
	sess := s.sessions[pageID]
	delete(s.sessions, pageID)
	delete(s.pages, pageID)
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	sess.stop()
	return true
}

// Summaries returns the current summary of every shielded page, ordered by
// page ID.
func (s *Shield) Summaries() []report.Summary {
	s.mu.Lock()
	out := make([]report.Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.track.summary())
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b report.Summary) int { return strings.Compare(a.PageID, b.PageID) })
	return out
}

// Stop ends every session, flushes pending reports to the sinks, closes
// them, and shuts the browser down.
func (s *Shield) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.stopSessions()

	s.mu.Lock()
	s.closed = true
	close(s.out)
	s.mu.Unlock()
	<-s.drained

	if err := s.sinkR.Close(); err != nil {
		s.log.Warn("domshield: close sinks", "error", err)
	}
	if err := s.mgr.Close(); err != nil {
		s.log.Warn("domshield: close browser", "error", err)
	}
}

// stopSessions ends all sessions but remembers their pages for reopen.
func (s *Shield) stopSessions() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for id, sess := range sessions {
		wg.Go(func() {
			sess.stop()
			s.log.Info("domshield: stopped page", "id", id)
		})
	}
	wg.Wait()
}

func (s *Shield) reopen(ctx context.Context) {
	s.mu.Lock()
	pages := make([]config.PageConfig, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.Unlock()
	s.openAll(ctx, pages)
}

func (s *Shield) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// emit queues r or a summary for the sinks without blocking the caller,
// which is usually a page loop. When the queue is full the event is dropped.
func (s *Shield) emit(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- v:
	default:
		s.log.Warn("domshield: report queue full, dropping event")
	}
}

func (s *Shield) drain() {
	defer close(s.drained)
	ctx := context.Background()
	for v := range s.out {
		switch v := v.(type) {
		case report.Report:
			s.sinkR.Send(ctx, v)
		case report.Summary:
			s.sinkR.SendSummary(ctx, v)
		}
	}
}

func (s *Shield) runtimeConfig(log *slog.Logger) filter.Config {
	return filter.Config{
		Logger:         log,
		Debug:          s.cfg.Debug,
		HideProperties: s.hideProps,
		Visibility:     s.vis,
	}
}

func compileRules(lines []string) ([]filter.Rule, error) {
	rules := make([]filter.Rule, 0, len(lines))
	for _, line := range lines {
		r, err := filter.ParseRule(line)
		if err != nil {
			return nil, fmt.Errorf("domshield: rule %q: %w", line, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
