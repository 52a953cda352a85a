package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID("t_", 16)
	if !strings.HasPrefix(id, "t_") {
		t.Errorf("missing prefix: %q", id)
	}
	if len(id) != 18 {
		t.Errorf("expected length 18, got %d (%q)", len(id), id)
	}
	for _, r := range id[2:] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("non-hex character %q in %q", r, id)
		}
	}
}

func TestGenerateRandomHexLengths(t *testing.T) {
	for _, length := range []int{0, -1, 1, 32} {
		got := GenerateRandomHex(length)
		want := length
		if want < 0 {
			want = 0
		}
		if len(got) != want {
			t.Errorf("GenerateRandomHex(%d) returned %d characters", length, len(got))
		}
	}
}

func TestGenerateTurnIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateTurnID()
		if seen[id] {
			t.Fatalf("duplicate turn id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, c := range cases {
		t.Setenv("GRAYCELLS_TEST_BOOL", c.value)
		if got := ParseBoolEnv("GRAYCELLS_TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}
