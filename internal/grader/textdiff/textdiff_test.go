package textdiff

import (
	"strings"
	"testing"
	"time"
)

func TestComputeEqualTexts(t *testing.T) {
	t.Parallel()

	spans, edits := Compute("a\nb\nc\n", "a\nb\nc\n")
	if edits != 0 {
		t.Fatalf("equal texts: got %d edits, want 0", edits)
	}
	if len(spans) != 1 || spans[0].Op != OpEqual || spans[0].Text != "a\nb\nc\n" {
		t.Fatalf("equal texts: unexpected spans %+v", spans)
	}
}

func TestComputeEmptyTexts(t *testing.T) {
	t.Parallel()

	spans, edits := Compute("", "")
	if edits != 0 || len(spans) != 0 {
		t.Fatalf("empty texts: got spans=%+v edits=%d", spans, edits)
	}
}

func TestComputeInsertOnly(t *testing.T) {
	t.Parallel()

	spans, edits := Compute("a\n", "a\nb\n")
	if edits != 1 {
		t.Fatalf("got %d edits, want 1", edits)
	}
	want := []Span{{Op: OpEqual, Text: "a\n"}, {Op: OpInsert, Text: "b\n"}}
	assertSpans(t, spans, want)
}

func TestComputeDeleteOnly(t *testing.T) {
	t.Parallel()

	spans, edits := Compute("a\nb\n", "a\n")
	if edits != 1 {
		t.Fatalf("got %d edits, want 1", edits)
	}
	want := []Span{{Op: OpEqual, Text: "a\n"}, {Op: OpDelete, Text: "b\n"}}
	assertSpans(t, spans, want)
}

func TestComputeReplacementOrdersDeleteFirst(t *testing.T) {
	t.Parallel()

	spans, edits := Compute("a\nx\nc\n", "a\ny\nc\n")
	if edits != 2 {
		t.Fatalf("got %d edits, want 2", edits)
	}
	// The changed region is the single differing character; the shared
	// prefix and suffix stay equal spans.
	want := []Span{
		{Op: OpEqual, Text: "a\n"},
		{Op: OpDelete, Text: "x"},
		{Op: OpInsert, Text: "y"},
		{Op: OpEqual, Text: "\nc\n"},
	}
	assertSpans(t, spans, want)
}

func TestComputeReconstructRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][2]string{
		{"", "x\n"},
		{"x\n", ""},
		{"1\n2\n3\n4\n", "1\n5\n3\n"},
		{"same\n", "same\n"},
		{"no trailing newline", "still no newline"},
		{"a\nb\nc\nd\ne\n", "e\nd\nc\nb\na\n"},
	}
	for _, c := range cases {
		spans, _ := Compute(c[0], c[1])
		exp, act := Reconstruct(spans)
		if exp != c[0] || act != c[1] {
			t.Fatalf("round trip of (%q,%q): got (%q,%q)", c[0], c[1], exp, act)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	t.Parallel()

	a, b := "1\nx\n3\ny\n5\n", "1\nz\n3\nw\n5\n"
	first, firstEdits := Compute(a, b)
	for i := 0; i < 5; i++ {
		again, againEdits := Compute(a, b)
		if againEdits != firstEdits {
			t.Fatalf("edit count changed between runs: %d vs %d", againEdits, firstEdits)
		}
		assertSpans(t, again, first)
	}
}

func TestComputeBudgetFallbackStaysValid(t *testing.T) {
	t.Parallel()

	// A big scrambled input with an expired budget must still produce a
	// script that reconstructs both sides.
	var exp, act strings.Builder
	for i := 0; i < 3000; i++ {
		exp.WriteString(strings.Repeat("x", i%17) + "\n")
		act.WriteString(strings.Repeat("y", (i*7)%13) + "\n")
	}
	d := &Differ{Timeout: time.Nanosecond}
	spans, edits := d.Compute(exp.String(), act.String())
	if edits == 0 {
		t.Fatal("expected a non-zero edit count")
	}
	gotExp, gotAct := Reconstruct(spans)
	if gotExp != exp.String() || gotAct != act.String() {
		t.Fatal("fallback script does not reconstruct the inputs")
	}
}

func assertSpans(t *testing.T, got, want []Span) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d spans %+v, want %d spans %+v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("span %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
