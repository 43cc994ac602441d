package tgui

import "testing"

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"milk", 10, "milk"},
		{"milk", 4, "milk"},
		{"yoghurt", 4, "yog…"},
		{"żółty ser", 3, "żó…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q,%d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestLinesEscape(t *testing.T) {
	t.Parallel()

	var l Lines
	l.Add(B("a<b"), Esc(" & "), Code("x")).Blank().Add(JoinH(" · ", I("i"), "", Escf("%d>", 3)))
	want := "<b>a&lt;b</b> &amp; <code>x</code>\n\n<i>i</i> · 3&gt;"
	if got := l.String(); got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}
