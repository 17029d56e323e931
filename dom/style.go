package dom

import (
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// Style is a set of resolved property values keyed by lower-case property
// name.
type Style map[string]string

// Get returns the value of prop, or "" when unset.
func (s Style) Get(prop string) string {
	if s == nil {
		return ""
	}
	return s[strings.ToLower(prop)]
}

// Declaration is one inline property.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// InlineStyle is a view over the style attribute of an element. Writes go
// through SetAttribute, so observers of the attribute see them.
type InlineStyle struct {
	doc *Document
	el  *html.Node
}

// InlineStyle returns the inline style view of el.
func (d *Document) InlineStyle(el *html.Node) *InlineStyle {
	return &InlineStyle{doc: d, el: el}
}

// Declarations returns the parsed declarations of the style attribute in
// source order. Later duplicates win, as in a browser.
func (s *InlineStyle) Declarations() []Declaration {
	raw, _ := Attr(s.el, "style")
	return parseDeclarations(raw)
}

// PropertyValue returns the value of name, or "".
func (s *InlineStyle) PropertyValue(name string) string {
	v, _ := s.lookup(name)
	return v
}

// PropertyPriority returns "important" or "".
func (s *InlineStyle) PropertyPriority(name string) string {
	if _, imp := s.lookup(name); imp {
		return "important"
	}
	return ""
}

func (s *InlineStyle) lookup(name string) (string, bool) {
	name = strings.ToLower(name)
	decls := s.Declarations()
	for i := len(decls) - 1; i >= 0; i-- {
		if decls[i].Property == name {
			return decls[i].Value, decls[i].Important
		}
	}
	return "", false
}

// SetProperty sets name to value. priority is "important" or "". An empty
// value removes the property.
func (s *InlineStyle) SetProperty(name, value, priority string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if value == "" {
		return s.RemoveProperty(name)
	}
	decls := s.Declarations()
	imp := strings.EqualFold(priority, "important")
	found := false
	out := decls[:0]
	for _, dc := range decls {
		if dc.Property == name {
			if found {
				continue
			}
			dc.Value, dc.Important, found = value, imp, true
		}
		out = append(out, dc)
	}
	if !found {
		out = append(out, Declaration{Property: name, Value: value, Important: imp})
	}
	return s.doc.SetAttribute(s.el, "style", serializeDeclarations(out))
}

// RemoveProperty deletes name from the style attribute.
func (s *InlineStyle) RemoveProperty(name string) error {
	name = strings.ToLower(name)
	decls := s.Declarations()
	out := decls[:0]
	removed := false
	for _, dc := range decls {
		if dc.Property == name {
			removed = true
			continue
		}
		out = append(out, dc)
	}
	if !removed {
		return nil
	}
	return s.doc.SetAttribute(s.el, "style", serializeDeclarations(out))
}

// parseDeclarations reads a declaration block. douceur drops a final
// declaration lacking ";" and rejects empty ones, so the block is normalised
// first. A block that still fails to parse yields nothing, like an invalid
// style attribute in a browser.
func parseDeclarations(raw string) []Declaration {
	raw = normalizeBlock(raw)
	if raw == "" {
		return nil
	}
	parsed, err := parser.ParseDeclarations(raw)
	if err != nil {
		return nil
	}
	return fromDouceur(parsed)
}

func fromDouceur(parsed []*css.Declaration) []Declaration {
	out := make([]Declaration, 0, len(parsed))
	for _, p := range parsed {
		prop := strings.ToLower(strings.TrimSpace(p.Property))
		if prop == "" {
			continue
		}
		out = append(out, Declaration{Property: prop, Value: strings.TrimSpace(p.Value), Important: p.Important})
	}
	return out
}

func normalizeBlock(raw string) string {
	parts := splitOutsideQuotes(raw, ';')
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteString("; ")
	}
	return strings.TrimSpace(b.String())
}

func serializeDeclarations(decls []Declaration) string {
	var b strings.Builder
	for i, dc := range decls {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(dc.Property)
		b.WriteString(": ")
		b.WriteString(dc.Value)
		if dc.Important {
			b.WriteString(" !important")
		}
		b.WriteByte(';')
	}
	return b.String()
}

// splitOutsideQuotes splits s on sep, ignoring separators inside quoted
// strings or parentheses.
func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	var quote byte
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
