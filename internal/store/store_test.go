package store

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// 4 bytes per rune; 1000 is not a multiple of 4, so a byte-boundary
	// cut would tear the rune at the limit.
	long := strings.Repeat("\U0001F525", 300)
	got := truncate(long, 1000)
	if len(got) > 1000 {
		t.Fatalf("len = %d, want <= 1000", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8")
	}
	if len(got) != 1000-(1000%4) {
		t.Fatalf("len = %d, want %d", len(got), 1000-(1000%4))
	}
}

func TestTruncateShortStringsUntouched(t *testing.T) {
	for _, s := range []string{"", "plain ascii", "héllo wörld"} {
		if got := truncate(s, 1000); got != s {
			t.Fatalf("truncate(%q) = %q", s, got)
		}
	}
}
