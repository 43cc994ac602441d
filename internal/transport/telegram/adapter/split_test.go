package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	t.Parallel()

	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("a", 6)
	s := strings.Join([]string{line, line, line, line}, "\n")
	got := splitText(s, 15, "")
	for _, c := range got {
		if utf8.RuneCountInString(c) > 15 {
			t.Fatalf("chunk too long: %q", c)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk has edge newline: %q", c)
		}
	}
	if strings.Join(got, "\n") != s {
		t.Fatalf("content lost: %q", got)
	}
}

func TestSplitTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("x", 8) + "<b>bold</b>"
	got := splitText(s, 10, "HTML")
	if len(got) < 2 || got[0] != strings.Repeat("x", 8) {
		t.Fatalf("got %q", got)
	}
	if strings.Join(got, "") != s {
		t.Fatalf("content lost: %q", got)
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("é", 25)
	got := splitText(s, 10, "")
	if len(got) != 3 || utf8.RuneCountInString(got[0]) != 10 {
		t.Fatalf("got %q", got)
	}
}
