package live

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/domshield/hide"
	"github.com/hazyhaar/domshield/live/internal/config"
	"github.com/hazyhaar/domshield/pattern"
	"github.com/hazyhaar/domshield/visibility"
)

// Config is the top-level domshield configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to shield.
type PageConfig = config.PageConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

func hideProperties(cfg *Config) []hide.Property {
	if len(cfg.Hide) == 0 {
		return nil
	}
	props := make([]hide.Property, 0, len(cfg.Hide))
	for _, p := range cfg.Hide {
		props = append(props, hide.Property{Name: p.Name, Value: p.Value})
	}
	return props
}

// visibilityOptions converts the YAML block. Entries of hidden_text are
// "property: pattern"; none keeps the evaluator's defaults.
func visibilityOptions(cfg *Config) (visibility.Options, error) {
	v := cfg.Visibility
	opts := visibility.Options{
		AllowSameColor: v.AllowSameColor,
		CheckContained: v.CheckContained,
		BoxMargin:      v.BoxMargin,
	}
	for _, entry := range v.HiddenText {
		prop, pat, ok := strings.Cut(entry, ":")
		prop = strings.TrimSpace(prop)
		if !ok || prop == "" {
			return opts, fmt.Errorf("domshield: hidden_text %q: want \"property: pattern\"", entry)
		}
		p, err := pattern.Compile(strings.TrimSpace(pat))
		if err != nil {
			return opts, fmt.Errorf("domshield: hidden_text %q: %w", entry, err)
		}
		opts.HiddenText = append(opts.HiddenText, visibility.StylePattern{Property: prop, Pattern: p})
	}
	return opts, nil
}
