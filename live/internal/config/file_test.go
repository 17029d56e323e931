package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
browser:
  remote: ws://127.0.0.1:9222/devtools/browser/x
  resource_blocking: [images, fonts]
pages:
  - url: https://example.com/
    rules:
      - "hide-if-contains /ad/ .card"
    winners: 1
  - id: news
    url: https://news.example/
    mode: plain
    settle: 2s
hide:
  - name: display
    value: none
visibility:
  check_contained: true
  hidden_text:
    - "text-indent: /^-/"
sinks:
  - type: journal
    path: /tmp/shield.db
status:
  listen: 127.0.0.1:9090
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Browser.Mode != "stealth" {
		t.Errorf("browser mode: got %q, want stealth", cfg.Browser.Mode)
	}
	if len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("resource_blocking: got %v", cfg.Browser.ResourceBlocking)
	}
	if len(cfg.Pages) != 2 {
		t.Fatalf("pages: got %d, want 2", len(cfg.Pages))
	}
	p0, p1 := cfg.Pages[0], cfg.Pages[1]
	if p0.ID != "page-1" {
		t.Errorf("page 0 id: got %q, want page-1", p0.ID)
	}
	if p0.Mode != "stealth" || p0.Settle != 10*time.Second || p0.Winners != 1 {
		t.Errorf("page 0 defaults: %+v", p0)
	}
	if p1.Mode != "plain" || p1.Settle != 2*time.Second {
		t.Errorf("page 1: %+v", p1)
	}
	if len(cfg.Hide) != 1 || cfg.Hide[0].Name != "display" {
		t.Errorf("hide: %+v", cfg.Hide)
	}
	if !cfg.Visibility.CheckContained || cfg.Visibility.BoxMargin != 1 {
		t.Errorf("visibility: %+v", cfg.Visibility)
	}
	if cfg.Status.Listen != "127.0.0.1:9090" {
		t.Errorf("status listen: got %q", cfg.Status.Listen)
	}
}

func TestApplyDefaults_Sinks(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("default sinks: got %+v", cfg.Sinks)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"no pages", Config{}, false},
		{"no url", Config{Pages: []PageConfig{{ID: "a"}}}, false},
		{"negative winners", Config{Pages: []PageConfig{{ID: "a", URL: "u", Winners: -1}}}, false},
		{"journal without path", Config{Pages: []PageConfig{{URL: "u"}}, Sinks: []SinkConfig{{Type: "journal"}}}, false},
		{"unknown sink", Config{Pages: []PageConfig{{URL: "u"}}, Sinks: []SinkConfig{{Type: "nats"}}}, false},
		{"ok", Config{Pages: []PageConfig{{URL: "u"}}, Sinks: []SinkConfig{{Type: "stdout"}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err == nil) != tc.ok {
				t.Errorf("got %v, want ok=%v", err, tc.ok)
			}
		})
	}
	if err := (&Config{}).Validate(); !errors.Is(err, ErrNoPages) {
		t.Errorf("got %v, want ErrNoPages", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domshield.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Pages) != 2 {
		t.Errorf("pages: got %d", len(cfg.Pages))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("pages: [")); err == nil {
		t.Error("expected error for bad yaml")
	}
}
