// Package model defines the persisted records and stage messages of the
// grading pipeline.
package model

import "time"

// Verdict represents the outcome of one test case execution.
type Verdict string

const (
	VerdictAC   Verdict = "AC"   // accepted
	VerdictWA   Verdict = "WA"   // wrong answer
	VerdictPE   Verdict = "PE"   // presentation error
	VerdictTLE  Verdict = "TLE"  // time limit exceeded
	VerdictOLE  Verdict = "OLE"  // output limit exceeded
	VerdictRE   Verdict = "RE"   // runtime error
	VerdictCE   Verdict = "CE"   // compile error, assigned by the compile stage only
	VerdictSkip Verdict = "SKIP" // pruned by the dependency scheduler
)

// Terminal reports whether the verdict ends a run before its output can be
// trusted. Stdout is discarded and generated files are not read for these.
func (v Verdict) Terminal() bool {
	return v == VerdictTLE || v == VerdictOLE || v == VerdictRE
}

// Compile states.
const (
	CompileSuccess = "success"
	CompileError   = "compile_error"
)

// Correctness tiers.
const (
	TierAllPass   = 1
	TierMixed     = 2
	TierAllFail   = 3
	TierNoCompile = 0
)

// Sentinels used when no test contributed a value.
const (
	AvgCPURatioNone   = -999
	MinSimilarityNone = -1
	TimeUnavailableMs = -1
	DiffUnavailable   = -1
)

// Submission is created by the intake subsystem and read-only to the pipeline.
type Submission struct {
	ID           string    `json:"id"` // stored filename, unique
	StudentID    string    `json:"student_id"`
	Homework     string    `json:"homework"`
	Type         string    `json:"type"` // assignment or challenge
	UploadID     string    `json:"upload_id"`
	OriginalName string    `json:"original_name"`
	UploadedAt   time.Time `json:"uploaded_at"`
	OnTime       bool      `json:"on_time"`
}

// CompileRecord is written exactly once by the compile stage.
type CompileRecord struct {
	SubmissionID string `json:"submission_id"`
	State        string `json:"state"` // success or compile_error
	Message      string `json:"message"`
}

// GeneratedFile is a file the reference solution produced and the
// submission is expected to reproduce.
type GeneratedFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// TestCase holds instructor reference material for one test of a
// (homework, type) pair. Immutable during grading.
type TestCase struct {
	Homework       string          `json:"homework"`
	Type           string          `json:"type"`
	TestNum        int             `json:"test_num"`
	Description    string          `json:"description"`
	Stdin          string          `json:"stdin"`
	ExpectedStdout string          `json:"expected_stdout"`
	GeneratedFiles []GeneratedFile `json:"generated_files,omitempty"`

	// Reference timings from the instructor solution, in milliseconds.
	RefCPUTimeMs  int64 `json:"ref_cpu_time_ms"`
	RefRealTimeMs int64 `json:"ref_real_time_ms"`

	// Predecessors lists test numbers that must pass before this test runs.
	Predecessors []int `json:"predecessors,omitempty"`
	// Dependents is the derived inverse edge set, filled at ingestion.
	Dependents []int `json:"dependents,omitempty"`
}

// DiffSpan is one span of an edit script.
type DiffSpan struct {
	Op   string `json:"op"` // "equal", "insert" or "delete"
	Text string `json:"text"`
}

// DiffSummary describes how one output item compares against its expected
// content. Diff is the number of non-equal spans, or DiffUnavailable when
// the item was never compared (terminal verdicts, missing files).
type DiffSummary struct {
	Item   string     `json:"item"` // "stdout" or a generated filename
	Diff   int        `json:"diff"`
	Script []DiffSpan `json:"script,omitempty"`
}

// ExecutionResult is written exactly once per (submission, test number).
// It exists only for tests the scheduler did not prune silently: pruned
// tests still get a synthetic record with VerdictSkip.
type ExecutionResult struct {
	SubmissionID string          `json:"submission_id"`
	Homework     string          `json:"homework"`
	Type         string          `json:"type"`
	TestNum      int             `json:"test_num"`
	Verdict      Verdict         `json:"verdict"`
	UserTimeMs   int64           `json:"user_time_ms"`
	SysTimeMs    int64           `json:"sys_time_ms"`
	RealTimeMs   int64           `json:"real_time_ms"`
	CPUTimeMs    int64           `json:"cpu_time_ms"` // user + sys
	Stdout       string          `json:"stdout"`
	Stderr       string          `json:"stderr"`
	OutputFiles  []GeneratedFile `json:"output_files,omitempty"`
	Diffs        []DiffSummary   `json:"diffs,omitempty"`
	Similarity   float64         `json:"similarity"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AggregateResult is created exactly once per submission by the completion
// barrier, or directly by the compile stage on a compile error.
type AggregateResult struct {
	SubmissionID  string    `json:"submission_id"`
	Homework      string    `json:"homework"`
	Type          string    `json:"type"`
	UploadID      string    `json:"upload_id"`
	AvgCPURatio   float64   `json:"avg_cpu_ratio"`
	MinSimilarity float64   `json:"min_similarity"`
	Verdicts      []Verdict `json:"verdicts"`
	Tier          int       `json:"tier"`
	CreatedAt     time.Time `json:"created_at"`
}
