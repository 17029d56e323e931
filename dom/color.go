package dom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// NormalizeColor rewrites a CSS colour the way getComputedStyle reports it:
// "rgb(r, g, b)" when opaque, "rgba(r, g, b, a)" otherwise. Values that are
// not recognised colours are returned unchanged.
func NormalizeColor(v string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "":
		return v
	case "transparent":
		return "rgba(0, 0, 0, 0)"
	}

	if strings.HasPrefix(s, "#") {
		return normalizeHex(s, v)
	}
	if c, ok := colornames.Map[s]; ok {
		return formatRGBA(c.R, c.G, c.B, 1)
	}
	if name, args, ok := cssFunc(s); ok {
		switch name {
		case "rgb", "rgba":
			return normalizeRGBFunc(args, v)
		case "hsl", "hsla":
			return normalizeHSLFunc(args, v)
		}
	}
	return v
}

func normalizeHex(s, orig string) string {
	alpha := 1.0
	switch len(s) {
	case 5: // #rgba
		a, err := strconv.ParseUint(s[4:5], 16, 8)
		if err != nil {
			return orig
		}
		alpha = float64(a) / 15
		s = s[:4]
	case 9: // #rrggbbaa
		a, err := strconv.ParseUint(s[7:9], 16, 8)
		if err != nil {
			return orig
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return orig
	}
	r, g, b := c.RGB255()
	return formatRGBA(r, g, b, alpha)
}

func normalizeRGBFunc(args []string, orig string) string {
	if len(args) != 3 && len(args) != 4 {
		return orig
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, ok := parseChannel(args[i])
		if !ok {
			return orig
		}
		ch[i] = v
	}
	alpha := 1.0
	if len(args) == 4 {
		a, ok := parseAlpha(args[3])
		if !ok {
			return orig
		}
		alpha = a
	}
	return formatRGBA(ch[0], ch[1], ch[2], alpha)
}

func normalizeHSLFunc(args []string, orig string) string {
	if len(args) != 3 && len(args) != 4 {
		return orig
	}
	h, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "deg"), 64)
	if err != nil {
		return orig
	}
	sat, ok1 := parsePercent(args[1])
	lig, ok2 := parsePercent(args[2])
	if !ok1 || !ok2 {
		return orig
	}
	alpha := 1.0
	if len(args) == 4 {
		a, ok := parseAlpha(args[3])
		if !ok {
			return orig
		}
		alpha = a
	}
	r, g, b := colorful.Hsl(h, sat, lig).Clamped().RGB255()
	return formatRGBA(r, g, b, alpha)
}

// cssFunc splits "name(a, b c / d)" into its name and arguments. Both the
// comma and the space-separated syntaxes are accepted.
func cssFunc(s string) (string, []string, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	name := strings.TrimSpace(s[:open])
	body := strings.ReplaceAll(s[open+1:len(s)-1], "/", " ")
	args := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	return name, args, true
}

func parseChannel(s string) (uint8, bool) {
	if strings.HasSuffix(s, "%") {
		p, ok := parsePercent(s)
		if !ok {
			return 0, false
		}
		return clampByte(p * 255), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return clampByte(f), true
}

func parseAlpha(s string) (float64, bool) {
	if strings.HasSuffix(s, "%") {
		return parsePercent(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return min(max(f, 0), 1), true
}

func parsePercent(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	return min(max(f/100, 0), 1), true
}

func clampByte(f float64) uint8 {
	return uint8(min(max(f, 0), 255) + 0.5)
}

func formatRGBA(r, g, b uint8, alpha float64) string {
	if alpha >= 1 {
		return fmt.Sprintf("rgb(%d, %d, %d)", r, g, b)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, strconv.FormatFloat(roundAlpha(alpha), 'f', -1, 64))
}

func roundAlpha(a float64) float64 {
	return float64(int(a*1000+0.5)) / 1000
}
