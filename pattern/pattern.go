// Package pattern compiles the text patterns used by filter rules. A pattern
// written as /body/flags is a JavaScript-flavoured regular expression; any
// other text matches as a plain substring.
package pattern

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single regular expression evaluation.
const MatchTimeout = 250 * time.Millisecond

// Pattern matches strings. The zero value matches everything.
type Pattern struct {
	source  string
	literal string
	re      *regexp2.Regexp
}

// Compile parses text. An empty text yields a pattern matching everything.
func Compile(text string) (*Pattern, error) {
	p := &Pattern{source: text}
	body, flags, ok := splitLiteral(text)
	if !ok {
		p.literal = text
		return p, nil
	}

	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u':
			opts |= regexp2.Unicode
		case 'g', 'y', 'd':
			// Stateful flags have no meaning for a yes/no match.
		default:
			return nil, fmt.Errorf("pattern: %q: unknown flag %q", text, f)
		}
	}
	re, err := regexp2.Compile(body, opts)
	if err != nil {
		return nil, fmt.Errorf("pattern: %q: %w", text, err)
	}
	re.MatchTimeout = MatchTimeout
	p.re = re
	return p, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(text string) *Pattern {
	p, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return p
}

// MatchString reports whether s matches. A regex that times out does not
// match.
func (p *Pattern) MatchString(s string) bool {
	if p == nil {
		return true
	}
	if p.re == nil {
		return strings.Contains(s, p.literal)
	}
	ok, err := p.re.MatchString(s)
	return err == nil && ok
}

// IsRegexp reports whether the pattern was written as /body/flags.
func (p *Pattern) IsRegexp() bool { return p != nil && p.re != nil }

// String returns the source text.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// splitLiteral splits "/body/flags". The last slash closes the body.
func splitLiteral(text string) (body, flags string, ok bool) {
	if len(text) < 2 || text[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndexByte(text, '/')
	if end == 0 {
		return "", "", false
	}
	flags = text[end+1:]
	if strings.ContainsFunc(flags, func(r rune) bool { return r < 'a' || r > 'z' }) {
		return "", "", false
	}
	return text[1:end], flags, true
}
