package verdict

import (
	"testing"

	"hwjudge/internal/grader/model"
)

func TestClassifyTerminalPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		out  Outcome
		want model.Verdict
	}{
		{"timeout wins over everything", Outcome{TimedOut: true, OutputExceeded: true, ExitCode: 1}, model.VerdictTLE},
		{"output cap wins over exit code", Outcome{OutputExceeded: true, ExitCode: 1}, model.VerdictOLE},
		{"non-zero exit", Outcome{ExitCode: 139}, model.VerdictRE},
		{"start failure", Outcome{StartFailed: true}, model.VerdictRE},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// Matching output must not rescue a terminal outcome.
			if got := Classify(tc.out, "42\n", "42\n"); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyAccepted(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name             string
		stdout, expected string
	}{
		{"exact match", "hello\n", "hello\n"},
		{"trailing whitespace ignored", "hello  \n\n", "hello\n"},
		{"internal spacing ignored", "1  2\t3\n", "1 2 3\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(Outcome{}, tc.stdout, tc.expected); got != model.VerdictAC {
				t.Fatalf("got %s, want AC", got)
			}
		})
	}
}

func TestClassifyPresentationError(t *testing.T) {
	t.Parallel()

	// Differs only in letter case after whitespace is stripped.
	if got := Classify(Outcome{}, "Hello World  \n", "hello world\n"); got != model.VerdictPE {
		t.Fatalf("got %s, want PE", got)
	}
}

func TestClassifyWrongAnswer(t *testing.T) {
	t.Parallel()

	if got := Classify(Outcome{}, "43\n", "42\n"); got != model.VerdictWA {
		t.Fatalf("got %s, want WA", got)
	}
}

func TestClassifyTotal(t *testing.T) {
	t.Parallel()

	// Every outcome/output combination must land on exactly one verdict.
	outs := []Outcome{
		{}, {TimedOut: true}, {OutputExceeded: true}, {ExitCode: 1}, {StartFailed: true},
	}
	for _, out := range outs {
		v := Classify(out, "a", "b")
		switch v {
		case model.VerdictAC, model.VerdictWA, model.VerdictPE,
			model.VerdictTLE, model.VerdictOLE, model.VerdictRE:
		default:
			t.Fatalf("outcome %+v produced unexpected verdict %s", out, v)
		}
	}
}

func TestDiscardOnTerminal(t *testing.T) {
	t.Parallel()

	if got := DiscardOnTerminal(model.VerdictTLE, "partial output"); got != "" {
		t.Fatalf("TLE stdout not discarded: %q", got)
	}
	if got := DiscardOnTerminal(model.VerdictWA, "kept"); got != "kept" {
		t.Fatalf("WA stdout discarded: %q", got)
	}
}
