package pattern

import "testing"

func TestMatchString(t *testing.T) {
	tests := []struct {
		pattern, input string
		want           bool
	}{
		{"", "anything", true},
		{"Sponsored", "A Sponsored post", true},
		{"sponsored", "A Sponsored post", false},
		{"/sponsored/i", "A Sponsored post", true},
		{"/^0$/", "0", true},
		{"/^0$/", "0.5", false},
		{`/^rgba\(0, 0, 0, 0\)$/`, "rgba(0, 0, 0, 0)", true},
		{"/ad/", "/ad/x", true},
		{"/a.b/s", "a\nb", true},
		{"/a.b/", "a\nb", false},
		{"a/b", "xa/by", true},
		{"/(?<=pro)mo/", "promo", true},
	}
	for _, tt := range tests {
		p, err := Compile(tt.pattern)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tt.pattern, err)
		}
		if got := p.MatchString(tt.input); got != tt.want {
			t.Errorf("%q.MatchString(%q): got %v, want %v", tt.pattern, tt.input, got, tt.want)
		}
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, text := range []string{"/(/", "/x/q"} {
		if _, err := Compile(text); err == nil {
			t.Errorf("Compile(%q): expected error", text)
		}
	}
}

func TestNilPattern(t *testing.T) {
	var p *Pattern
	if !p.MatchString("x") {
		t.Error("nil pattern must match")
	}
	if p.IsRegexp() {
		t.Error("nil pattern is not a regexp")
	}
}
