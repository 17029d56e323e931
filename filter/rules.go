package filter

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/pattern"
	"github.com/hazyhaar/domshield/selector"
)

// HideIfContains hides the closest selector ancestor of every
// searchSelector element whose text content matches pat.
func HideIfContains(pat, sel, searchSelector string) (Rule, error) {
	p, err := pattern.Compile(pat)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Name:           ruleName("hide-if-contains", pat, sel, searchSelector),
		Selector:       sel,
		SearchSelector: searchSelector,
		Match: func(_ *Runtime, m selector.Match) bool {
			return p.MatchString(dom.TextContent(m.Element))
		},
	}, nil
}

// HideIfContainsVisibleText is HideIfContains over the text a user can
// actually see, as computed by the visibility evaluator.
func HideIfContainsVisibleText(pat, sel, searchSelector string) (Rule, error) {
	p, err := pattern.Compile(pat)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Name:           ruleName("hide-if-contains-visible-text", pat, sel, searchSelector),
		Selector:       sel,
		SearchSelector: searchSelector,
		Match: func(rt *Runtime, m selector.Match) bool {
			closest := rt.FindClosest(m.Element, sel, m.RootParents)
			text := rt.VisibleContent(m.Element, closest, m.RootParents)
			return p.MatchString(text)
		},
	}, nil
}

// HideIfMatchesComputedStyle hides elements whose computed value of prop
// matches pat.
func HideIfMatchesComputedStyle(prop, pat, sel string) (Rule, error) {
	if prop == "" {
		return Rule{}, fmt.Errorf("filter: hide-if-matches-computed-style: empty property")
	}
	p, err := pattern.Compile(pat)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Name:     ruleName("hide-if-matches-computed-style", prop, pat, sel),
		Selector: sel,
		Match: func(rt *Runtime, m selector.Match) bool {
			st, err := rt.host.ComputedStyle(m.Element, "")
			if err != nil {
				return false
			}
			return p.MatchString(st.Get(prop))
		},
	}, nil
}

// ParseRule builds a rule from its textual form: a rule name followed by
// whitespace separated arguments. Arguments may be quoted with single
// quotes; a backslash escapes the next character.
//
//	hide-if-contains /Sponsored/i .post span.label
//	hide-if-contains-visible-text 'Promoted post' article
//	hide-if-matches-computed-style z-index /^2147483647$/ div
func ParseRule(line string) (Rule, error) {
	args, err := splitArgs(line)
	if err != nil {
		return Rule{}, err
	}
	if len(args) == 0 {
		return Rule{}, fmt.Errorf("filter: empty rule")
	}
	name, args := args[0], args[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	var rule Rule
	switch name {
	case "hide-if-contains":
		rule, err = HideIfContains(arg(0), arg(1), arg(2))
	case "hide-if-contains-visible-text":
		rule, err = HideIfContainsVisibleText(arg(0), arg(1), arg(2))
	case "hide-if-matches-computed-style":
		rule, err = HideIfMatchesComputedStyle(arg(0), arg(1), arg(2))
	default:
		return Rule{}, fmt.Errorf("filter: unknown rule %q", name)
	}
	if err != nil {
		return Rule{}, err
	}
	if rule.Selector == "" {
		return Rule{}, fmt.Errorf("filter: %s: %w", name, ErrNoSelector)
	}
	return rule, nil
}

func splitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inArg, quoted := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
			inArg = true
		case c == '\'':
			quoted = !quoted
			inArg = true
		case !quoted && (c == ' ' || c == '\t'):
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteByte(c)
			inArg = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("filter: unterminated quote in %q", line)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

func ruleName(kind string, args ...string) string {
	parts := []string{kind}
	for _, a := range args {
		if a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}
