package live

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/hazyhaar/domshield/live/internal/browser"
	"github.com/hazyhaar/domshield/live/internal/config"
	"github.com/hazyhaar/domshield/live/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/dlclark/regexp2.runClock"))
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type collected struct {
	mu   sync.Mutex
	reps []report.Report
	sums []report.Summary
}

func (c *collected) sink() Sink {
	return NewCallbackSink(
		func(_ context.Context, r report.Report) error {
			c.mu.Lock()
			c.reps = append(c.reps, r)
			c.mu.Unlock()
			return nil
		},
		func(_ context.Context, s report.Summary) error {
			c.mu.Lock()
			c.sums = append(c.sums, s)
			c.mu.Unlock()
			return nil
		},
	)
}

func newShield(t *testing.T, cfg *Config, sinks ...Sink) *Shield {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
		cfg.ApplyDefaults()
	}
	s, err := New(cfg, quiet(), sinks...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

const feed = `<html><head><style>.ghost { opacity: 0 }</style></head><body>
<article id="a1"><span>Sponsored</span> buy now</article>
<article id="a2">real news</article>
<article id="a3"><span class="ghost">Sponsored</span> real too</article>
</body></html>`

func TestApplyHTML_HidesMatches(t *testing.T) {
	var c collected
	s := newShield(t, nil, c.sink())

	out, reps, err := s.ApplyHTML(context.Background(), feed, []string{
		`hide-if-contains /Sponsored/ article`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `<article id="a1" style="display: none !important;">`) {
		t.Errorf("a1 not hidden:\n%s", out)
	}
	if strings.Contains(out, `<article id="a2" style=`) {
		t.Error("a2 hidden")
	}
	if len(reps) != 2 {
		t.Fatalf("got %d reports, want 2", len(reps))
	}
	r := reps[0]
	if r.Kind != report.KindHide || r.Tag != "article" || r.XPath != "/html/body/article[1]" {
		t.Errorf("report: got %+v", r)
	}
	if r.Selector != "article" || r.PageID != offlinePage || r.ID == "" || !strings.HasPrefix(r.RunID, "run_") {
		t.Errorf("report fields: got %+v", r)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reps) != 2 || len(c.sums) != 1 {
		t.Fatalf("sinks: got %d reports, %d summaries", len(c.reps), len(c.sums))
	}
	sum := c.sums[0]
	if sum.Hidden != 2 || sum.Rules != 1 || sum.Active() {
		t.Errorf("summary: got %+v", sum)
	}
}

func TestApplyHTML_VisibleText(t *testing.T) {
	s := newShield(t, nil)
	out, reps, err := s.ApplyHTML(context.Background(), feed, []string{
		`hide-if-contains-visible-text /Sponsored/ article`,
	})
	if err != nil {
		t.Fatal(err)
	}
	// a3's label has opacity 0, so only a1 reads as sponsored.
	if len(reps) != 1 || !strings.Contains(out, `<article id="a1" style=`) {
		t.Errorf("got %d reports:\n%s", len(reps), out)
	}
	if strings.Contains(out, `<article id="a3" style=`) {
		t.Error("a3 hidden by invisible text")
	}
}

func TestApplyHTML_CustomHide(t *testing.T) {
	cfg := &Config{Hide: []config.HideProperty{{Name: "visibility", Value: "hidden"}}}
	cfg.ApplyDefaults()
	s := newShield(t, cfg)
	out, _, err := s.ApplyHTML(context.Background(), feed, []string{`hide-if-contains buy article`})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `style="visibility: hidden !important;"`) {
		t.Errorf("custom property not applied:\n%s", out)
	}
}

func TestApplyHTML_Errors(t *testing.T) {
	s := newShield(t, nil)
	if _, _, err := s.ApplyHTML(context.Background(), feed, []string{"hide-if-bogus x y"}); err == nil {
		t.Error("expected rule error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := s.ApplyHTML(ctx, feed, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := &Config{Pages: []PageConfig{{ID: "p", URL: "https://example.com", Rules: []string{"nope"}}}}
	if _, err := New(cfg, quiet()); err == nil {
		t.Error("expected rule error")
	}

	cfg = &Config{}
	cfg.Visibility.HiddenText = []string{"opacity"}
	if _, err := New(cfg, quiet()); err == nil {
		t.Error("expected hidden_text error")
	}
}

func TestVisibilityOptions(t *testing.T) {
	cfg := &Config{}
	cfg.Visibility.HiddenText = []string{"opacity: /^0(\\.0+)?$/", " color : transparent"}
	cfg.Visibility.CheckContained = true
	opts, err := visibilityOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.CheckContained || len(opts.HiddenText) != 2 {
		t.Fatalf("got %+v", opts)
	}
	if p := opts.HiddenText[0]; p.Property != "opacity" || !p.Pattern.MatchString("0.00") {
		t.Errorf("opacity pattern: got %+v", p)
	}
	if p := opts.HiddenText[1]; p.Property != "color" || !p.Pattern.MatchString("transparent") {
		t.Errorf("color pattern: got %+v", p)
	}

	empty, _ := visibilityOptions(&Config{})
	if empty.HiddenText != nil {
		t.Error("empty config should keep evaluator defaults")
	}
}

func TestShieldPage_NoBrowser(t *testing.T) {
	s := newShield(t, nil)
	err := s.ShieldPage(context.Background(), PageConfig{ID: "p", URL: "https://example.com"})
	if !errors.Is(err, browser.ErrNoBrowser) {
		t.Errorf("got %v, want ErrNoBrowser", err)
	}
	if got := s.Summaries(); len(got) != 0 {
		t.Errorf("summaries: got %+v", got)
	}
	if s.Unshield("p") {
		t.Error("Unshield reported a session")
	}
}

func TestStop_Closes(t *testing.T) {
	s, err := New(&Config{}, quiet())
	if err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start: got %v, want ErrClosed", err)
	}
	if err := s.ShieldPage(context.Background(), PageConfig{URL: "https://example.com"}); !errors.Is(err, ErrClosed) {
		t.Errorf("ShieldPage: got %v, want ErrClosed", err)
	}
	// Emitting after close is dropped, not a panic.
	s.emit(report.Report{})
}

func TestBuildSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Sinks: []SinkConfig{
		{Type: "stdout"},
		{Type: "journal", Path: filepath.Join(dir, "j.db")},
		{Type: "webhook", URL: "http://127.0.0.1:1/hook"},
	}}
	var buf bytes.Buffer
	sinks, journal, err := BuildSinks(cfg, &buf, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if len(sinks) != 3 || journal == nil {
		t.Fatalf("got %d sinks, journal %v", len(sinks), journal)
	}
	for _, sk := range sinks {
		sk.Close()
	}

	// A file where a directory is expected.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	bad := &Config{Sinks: []SinkConfig{{Type: "stdout"}, {Type: "journal", Path: filepath.Join(blocker, "j.db")}}}
	if _, _, err := BuildSinks(bad, &buf, quiet()); err == nil {
		t.Error("expected journal open error")
	}
}

func TestSinks_EndToEnd(t *testing.T) {
	cfg := &Config{Sinks: []SinkConfig{
		{Type: "stdout"},
		{Type: "journal", Path: filepath.Join(t.TempDir(), "j.db")},
	}}
	var buf bytes.Buffer
	sinks, journal, err := BuildSinks(cfg, &buf, quiet())
	if err != nil {
		t.Fatal(err)
	}
	metrics := NewMetrics()
	s, err := New(&Config{}, quiet(), append(sinks, metrics)...)
	if err != nil {
		t.Fatal(err)
	}
	if s.metrics != metrics {
		t.Error("metrics sink not picked up")
	}
	_, reps, err := s.ApplyHTML(context.Background(), feed, []string{`hide-if-contains news article`})
	if err != nil {
		t.Fatal(err)
	}
	if len(reps) != 1 {
		t.Fatalf("got %d reports, want 1", len(reps))
	}

	stored, err := journal.Reports(context.Background(), reps[0].RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].XPath != "/html/body/article[2]" {
		t.Errorf("journal: got %+v", stored)
	}
	s.Stop()

	if !strings.Contains(buf.String(), `"type":"report"`) || !strings.Contains(buf.String(), `"type":"summary"`) {
		t.Errorf("stdout: got %q", buf.String())
	}
}
