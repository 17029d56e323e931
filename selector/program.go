// Package selector resolves extended selectors. A selector is plain CSS
// optionally chained through commands written between "^^" markers:
//
//	.card^^sh^^.badge          descend into the shadow root of .card
//	use^^svg^^                 follow the href of an SVG <use> element
//	x-app^^sh^^x-list^^sh^^li  cross several shadow boundaries
//
// Each command boundary crossed is recorded in the root-parent chain of the
// match, so ancestor and visibility walks can continue in the outer tree.
package selector

import "strings"

// Separator delimits commands inside a selector.
const Separator = "^^"

// Kind tags a Segment.
type Kind int

const (
	Plain Kind = iota
	Shadow
	SVGRef
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Shadow:
		return "sh"
	case SVGRef:
		return "svg"
	}
	return "unknown"
}

// Segment is one step of a Program. For Plain, Head is the whole CSS
// selector and Tail is nil. For commands, Head selects the boundary
// elements (empty means the scope itself) and Tail runs beyond them.
type Segment struct {
	Kind    Kind
	Head    string
	Command string
	Tail    *Program
}

// Program is a parsed selector. Programs are immutable and safe to share.
type Program struct {
	Source  string
	Segment Segment
}

// Parse splits src on "^^". The first two tokens become head and command,
// the rest is rejoined and parsed as the tail.
func Parse(src string) *Program {
	parts := strings.Split(src, Separator)
	if len(parts) == 1 {
		return &Program{Source: src, Segment: Segment{Kind: Plain, Head: src}}
	}
	head := strings.TrimSpace(parts[0])
	cmd := parts[1]
	tail := ""
	if len(parts) > 2 {
		tail = strings.Join(parts[2:], Separator)
	}
	seg := Segment{Head: head, Command: cmd, Tail: Parse(tail)}
	switch cmd {
	case "sh":
		seg.Kind = Shadow
	case "svg":
		seg.Kind = SVGRef
	default:
		seg.Kind = Unknown
	}
	return &Program{Source: src, Segment: seg}
}

// IsBlank reports whether p is a plain, whitespace-only selector.
func (p *Program) IsBlank() bool {
	return p == nil || (p.Segment.Kind == Plain && strings.TrimSpace(p.Segment.Head) == "")
}

// ShadowDepth counts the shadow boundaries p crosses.
func (p *Program) ShadowDepth() int {
	n := 0
	for q := p; q != nil && q.Segment.Kind != Plain; q = q.Segment.Tail {
		if q.Segment.Kind == Shadow {
			n++
		}
	}
	return n
}

func (p *Program) String() string {
	if p == nil {
		return ""
	}
	return p.Source
}
