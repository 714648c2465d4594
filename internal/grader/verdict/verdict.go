// Package verdict classifies raw process outcomes against expected output.
package verdict

import (
	"strings"

	"hwjudge/internal/grader/model"
)

// Outcome carries the raw process result the classifier needs.
type Outcome struct {
	ExitCode       int
	TimedOut       bool
	OutputExceeded bool
	// StartFailed marks infrastructure failures (process never ran).
	StartFailed bool
}

// Classify maps a process outcome and its stdout to a verdict, in priority
// order: TLE, OLE, RE, then text comparison. CE never originates here; the
// compile stage assigns it before any test runs.
//
// Callers must discard stdout for terminal verdicts before scoring;
// DiscardOnTerminal does that.
func Classify(out Outcome, stdout, expected string) model.Verdict {
	switch {
	case out.TimedOut:
		return model.VerdictTLE
	case out.OutputExceeded:
		return model.VerdictOLE
	case out.StartFailed || out.ExitCode != 0:
		return model.VerdictRE
	}

	got := StripWhitespace(stdout)
	want := StripWhitespace(expected)
	if got == want {
		return model.VerdictAC
	}
	if strings.EqualFold(got, want) {
		return model.VerdictPE
	}
	return model.VerdictWA
}

// DiscardOnTerminal returns stdout emptied when the verdict is terminal.
// Partial output under a crash or timeout is not evidence of correctness.
func DiscardOnTerminal(v model.Verdict, stdout string) string {
	if v.Terminal() {
		return ""
	}
	return stdout
}
