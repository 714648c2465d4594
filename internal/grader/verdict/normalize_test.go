package verdict

import "testing"

func TestRegularize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"tabs become spaces", "a\tb", "a b"},
		{"space runs collapse", "a    b", "a b"},
		{"blank lines collapse", "a\n\n\nb", "a\nb"},
		{"spaces around newline dropped", "a  \n  b", "a\nb"},
		{"lowercased", "AbC", "abc"},
		{"combined", "A\t\tB   C \n\n  d", "a b c\nd"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Regularize(tc.in); got != tc.want {
				t.Fatalf("Regularize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripWhitespace(t *testing.T) {
	t.Parallel()

	if got := StripWhitespace(" a\tb\nc\r\n "); got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
	if got := StripWhitespace(""); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
