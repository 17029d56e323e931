package visibility

import (
	"strconv"
	"strings"

	"github.com/gorilla/css/scanner"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domshield/dom"
)

// VisibleContent returns the text of el a user can actually see: generated
// ::before and ::after content, visible text of descendants, and nothing
// clipped away by an overflow: hidden ancestor. closest bounds the
// ancestor walk of the initial visibility check.
func (e *Evaluator) VisibleContent(el, closest *html.Node, rootParents []*html.Node) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	e.visibleContent(&b, el, closest, nil, nil, el, rootParents)
	return b.String()
}

func (e *Evaluator) visibleContent(b *strings.Builder, el, closest *html.Node, style dom.Style, clip, original *html.Node, rootParents []*html.Node) {
	if style == nil {
		style = e.style(el, "")
	}
	if !e.IsVisible(el, style, closest, rootParents) {
		return
	}
	if clip == nil && (style.Get("overflow-x") == "hidden" || style.Get("overflow-y") == "hidden") {
		clip = el
	}

	b.WriteString(e.PseudoContent(el, "::before"))
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			e.visibleContent(b, c, el, nil, clip, original, rootParents)
		case html.TextNode:
			if !e.IsTextVisible(style) {
				continue
			}
			switch {
			case clip != nil:
				if !e.IsContained(c, clip, e.opts.BoxMargin) {
					continue
				}
			case e.opts.CheckContained:
				if !e.IsContained(c, original, e.opts.BoxMargin) {
					continue
				}
			}
			b.WriteString(c.Data)
		}
	}
	b.WriteString(e.PseudoContent(el, "::after"))
}

// PseudoContent returns the generated text of el's pseudo-element, or ""
// when the pseudo-element is hidden or generates nothing.
func (e *Evaluator) PseudoContent(el *html.Node, pseudo string) string {
	style := e.style(el, pseudo)
	if style == nil {
		return ""
	}
	if !e.IsVisible(el, style, nil, nil) || !e.IsTextVisible(style) {
		return ""
	}
	switch v := strings.TrimSpace(style.Get("content")); v {
	case "", "none", "normal":
		return ""
	default:
		return DecodeContent(v, func(name string) string {
			val, _ := dom.Attr(el, name)
			return val
		})
	}
}

// DecodeContent evaluates a CSS content value. String literals contribute
// their text as written, attr() references the attribute value with the
// whitespace around them trimmed, and every other token its source text.
func DecodeContent(value string, attr func(name string) string) string {
	var (
		b       strings.Builder
		space   string
		trimmed bool
	)
	s := scanner.New(value)
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			b.WriteString(space)
			return b.String()
		case scanner.TokenS:
			if !trimmed {
				space += tok.Value
			}
			continue
		case scanner.TokenComment:
			continue
		}
		trimmed = false
		if tok.Type == scanner.TokenFunction && strings.EqualFold(tok.Value, "attr(") {
			space = ""
			if args := functionArgs(s); len(args) > 0 {
				b.WriteString(attr(args[0]))
			}
			trimmed = true
			continue
		}
		b.WriteString(space)
		space = ""
		if tok.Type == scanner.TokenString && len(tok.Value) >= 2 {
			b.WriteString(tok.Value[1 : len(tok.Value)-1])
		} else {
			b.WriteString(tok.Value)
		}
	}
}

// functionArgs consumes tokens up to the closing parenthesis and returns
// the identifiers and strings seen.
func functionArgs(s *scanner.Scanner) []string {
	var args []string
	depth := 1
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			return args
		case scanner.TokenFunction:
			depth++
		case scanner.TokenIdent:
			args = append(args, unescape(tok.Value))
		case scanner.TokenString:
			args = append(args, unquote(tok.Value))
		case scanner.TokenChar:
			switch tok.Value {
			case "(":
				depth++
			case ")":
				depth--
				if depth == 0 {
					return args
				}
			}
		}
	}
}

func unquote(tok string) string {
	if len(tok) >= 2 {
		tok = tok[1 : len(tok)-1]
	}
	return unescape(tok)
}

// unescape resolves CSS escapes: "\" hex{1,6} with one optional trailing
// space, "\" newline as a line continuation, and "\" any other character.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		if j > i {
			n, _ := strconv.ParseUint(s[i:j], 16, 32)
			if n == 0 || n > 0x10FFFF {
				n = 0xFFFD
			}
			b.WriteRune(rune(n))
			if j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
				j++
			}
			i = j - 1
			continue
		}
		if s[i] == '\n' {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
