// Package textdiff computes edit scripts between an expected and an actual
// text. Scripts are used for rendering and for the per-item diff counts
// stored on execution results.
package textdiff

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Span operations.
const (
	OpEqual  = "equal"
	OpInsert = "insert" // present in actual, missing from expected
	OpDelete = "delete" // present in expected, missing from actual
)

// Span is one run of the edit script. Concatenating the Text of all equal
// and delete spans reproduces the expected text; equal and insert spans
// reproduce the actual text.
type Span struct {
	Op   string
	Text string
}

// DefaultTimeout bounds one diff computation. When exceeded the differ
// returns the best script it has instead of blocking the caller.
const DefaultTimeout = 10 * time.Second

// Differ computes edit scripts under a time budget.
type Differ struct {
	// Timeout caps one Compute call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Compute returns the edit script between expected and actual and the number
// of non-equal spans. Both inputs should already be normalized by the caller.
// Deterministic for identical inputs.
func (d *Differ) Compute(expected, actual string) ([]Span, int) {
	if expected == actual {
		if expected == "" {
			return nil, 0
		}
		return []Span{{Op: OpEqual, Text: expected}}, 0
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = timeout

	diffs := dmp.DiffMain(expected, actual, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	spans := make([]Span, 0, len(diffs))
	edits := 0
	for _, df := range diffs {
		span := Span{Text: df.Text}
		switch df.Type {
		case diffmatchpatch.DiffDelete:
			span.Op = OpDelete
			edits++
		case diffmatchpatch.DiffInsert:
			span.Op = OpInsert
			edits++
		default:
			span.Op = OpEqual
		}
		spans = append(spans, span)
	}
	return spans, edits
}

// Compute runs a diff with the default time budget.
func Compute(expected, actual string) ([]Span, int) {
	var d Differ
	return d.Compute(expected, actual)
}

// Reconstruct rebuilds the two input texts from an edit script.
func Reconstruct(spans []Span) (expected, actual string) {
	var exp, act strings.Builder
	for _, s := range spans {
		switch s.Op {
		case OpEqual:
			exp.WriteString(s.Text)
			act.WriteString(s.Text)
		case OpDelete:
			exp.WriteString(s.Text)
		case OpInsert:
			act.WriteString(s.Text)
		}
	}
	return exp.String(), act.String()
}
