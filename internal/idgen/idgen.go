// Package idgen generates identifiers for runs and reports.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs, which sort by
// creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID from gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is used by New.
var Default = UUIDv7()

// Run identifies one shield run (one page, one session).
var Run = Prefixed("run_", UUIDv7())

// New produces an ID using Default.
func New() string {
	return Default()
}

// Parse validates a UUID, ignoring a known prefix.
func Parse(s string) (string, error) {
	raw := s
	if len(raw) > 4 && raw[:4] == "run_" {
		raw = raw[4:]
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return s, nil
}
