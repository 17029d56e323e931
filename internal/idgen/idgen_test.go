package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 {
		t.Fatalf("got length %d, want 36", len(id))
	}
	if parts := strings.Split(id, "-"); len(parts) != 5 {
		t.Fatalf("got %d parts in %q, want 5", len(parts), id)
	}
	if id[14] != '7' {
		t.Errorf("version nibble: got %c, want 7", id[14])
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("ids are not time ordered")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestRun(t *testing.T) {
	id := Run()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("got %q, want run_ prefix", id)
	}
	if _, err := Parse(id); err != nil {
		t.Errorf("Parse(%q): %v", id, err)
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse(New()); err != nil {
		t.Errorf("Parse(New()): %v", err)
	}
	for _, bad := range []string{"", "run_", "not-a-uuid", "run_zzz"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q): expected error", bad)
		}
	}
}
