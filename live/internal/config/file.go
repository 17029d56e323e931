// Package config loads domshield configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoPages is returned by Validate when no page is configured.
var ErrNoPages = errors.New("config: no pages")

// Config is the top-level domshield configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Pages      []PageConfig     `yaml:"pages"`
	Hide       []HideProperty   `yaml:"hide"`
	Visibility VisibilityConfig `yaml:"visibility"`
	Debug      bool             `yaml:"debug"`
	Sinks      []SinkConfig     `yaml:"sinks"`
	Status     StatusConfig     `yaml:"status"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Headful          bool          `yaml:"headful"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Mode             string        `yaml:"mode"` // stealth | plain
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// PageConfig defines a page to shield.
type PageConfig struct {
	ID    string   `yaml:"id"`
	URL   string   `yaml:"url"`
	Mode  string   `yaml:"mode"`
	Rules []string `yaml:"rules"`
	// Winners sizes the race session over the page's rules. 0 disables it.
	Winners int `yaml:"winners"`
	// Settle is how long rules may run before the race session ends.
	Settle time.Duration `yaml:"settle"`
}

// HideProperty is one style override applied to hidden elements.
type HideProperty struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// VisibilityConfig tunes the visibility evaluator.
type VisibilityConfig struct {
	AllowSameColor bool     `yaml:"allow_same_color"`
	CheckContained bool     `yaml:"check_contained"`
	BoxMargin      float64  `yaml:"box_margin"`
	HiddenText     []string `yaml:"hidden_text"` // "property: pattern"
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | journal | webhook
	Path string `yaml:"path"` // journal database
	URL  string `yaml:"url"`  // webhook target
}

// StatusConfig enables the HTTP status server.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "stealth"
	}
	if c.Visibility.BoxMargin <= 0 {
		c.Visibility.BoxMargin = 1
	}
	for i := range c.Pages {
		p := &c.Pages[i]
		if p.ID == "" {
			p.ID = fmt.Sprintf("page-%d", i+1)
		}
		if p.Mode == "" {
			p.Mode = c.Browser.Mode
		}
		if p.Settle <= 0 {
			p.Settle = 10 * time.Second
		}
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}

// Validate checks the fields defaults cannot fill.
func (c *Config) Validate() error {
	if len(c.Pages) == 0 {
		return ErrNoPages
	}
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %s has no url", p.ID)
		}
		if p.Winners < 0 {
			return fmt.Errorf("config: page %s: negative winners", p.ID)
		}
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "journal":
			if s.Path == "" {
				return errors.New("config: journal sink needs a path")
			}
		case "webhook":
			if s.URL == "" {
				return errors.New("config: webhook sink needs a url")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}
