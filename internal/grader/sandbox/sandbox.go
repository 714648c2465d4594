// Package sandbox runs compiled submissions against test cases inside an
// isolated scratch directory and turns each run into an ExecutionResult.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/similarity"
	"hwjudge/internal/grader/textdiff"
	"hwjudge/internal/grader/verdict"
	"hwjudge/pkg/utils/logger"
)

const (
	binaryName  = "program"
	stdinName   = "in.txt"
	timingName  = "time.txt"
	timeoutExit = 124 // exit status of timeout(1) on expiry

	stderrCap = 64 * 1024
)

// Config controls sandboxed runs. Zero values are filled by DefaultConfig.
type Config struct {
	WorkRoot string `yaml:"work_root"`
	// RunTemplate is expanded with {timeout} (seconds) and {stack} (KB)
	// and split with shlex before exec.
	RunTemplate         string  `yaml:"run_template"`
	StackLimitKB        int     `yaml:"stack_limit_kb"`
	TimeoutMultiplier   float64 `yaml:"timeout_multiplier"`
	FloorTimeoutSec     float64 `yaml:"floor_timeout_sec"`
	OutputCapBytes      int64   `yaml:"output_cap_bytes"`
	OutputCapMultiplier float64 `yaml:"output_cap_multiplier"`
	ReferenceTimeoutSec float64 `yaml:"reference_timeout_sec"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WorkRoot:            "/tmp/hwjudge",
		RunTemplate:         `timeout {timeout}s firejail --quiet /bin/bash -c "ulimit -s {stack} && { time ./program < in.txt ; } 2> time.txt"`,
		StackLimitKB:        262144,
		TimeoutMultiplier:   10,
		FloorTimeoutSec:     5,
		OutputCapBytes:      1 << 20,
		OutputCapMultiplier: 4,
		ReferenceTimeoutSec: 60,
	}
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.WorkRoot == "" {
		c.WorkRoot = def.WorkRoot
	}
	if c.RunTemplate == "" {
		c.RunTemplate = def.RunTemplate
	}
	if c.StackLimitKB <= 0 {
		c.StackLimitKB = def.StackLimitKB
	}
	if c.TimeoutMultiplier <= 0 {
		c.TimeoutMultiplier = def.TimeoutMultiplier
	}
	if c.FloorTimeoutSec <= 0 {
		c.FloorTimeoutSec = def.FloorTimeoutSec
	}
	if c.OutputCapBytes <= 0 {
		c.OutputCapBytes = def.OutputCapBytes
	}
	if c.OutputCapMultiplier <= 0 {
		c.OutputCapMultiplier = def.OutputCapMultiplier
	}
	if c.ReferenceTimeoutSec <= 0 {
		c.ReferenceTimeoutSec = def.ReferenceTimeoutSec
	}
}

// Engine executes one (submission, test) run per call. Safe for concurrent
// use; every run gets its own scratch directory.
type Engine struct {
	cfg    Config
	differ *textdiff.Differ
}

// NewEngine creates an engine with defaults applied to cfg.
func NewEngine(cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:    cfg,
		differ: &textdiff.Differ{Timeout: textdiff.DefaultTimeout},
	}
}

// RunRequest carries everything one run needs. Fixtures map filenames to
// raw content; names ending in ".bin" are binary payloads, the rest is
// text, written identically either way.
type RunRequest struct {
	SubmissionID string
	Binary       []byte
	Fixtures     map[string][]byte
	Test         model.TestCase
}

// Run executes the submission against one test case. It never returns an
// error: infrastructure failures degrade to a runtime-error result for
// this test only, so one broken run cannot sink the whole submission.
func (e *Engine) Run(ctx context.Context, req RunRequest) model.ExecutionResult {
	res := model.ExecutionResult{
		SubmissionID: req.SubmissionID,
		Homework:     req.Test.Homework,
		Type:         req.Test.Type,
		TestNum:      req.Test.TestNum,
		UserTimeMs:   model.TimeUnavailableMs,
		SysTimeMs:    model.TimeUnavailableMs,
		RealTimeMs:   model.TimeUnavailableMs,
		CPUTimeMs:    model.TimeUnavailableMs,
		CreatedAt:    time.Now(),
	}

	dir, err := e.prepare(req)
	if dir != "" {
		defer os.RemoveAll(dir)
	}
	if err != nil {
		logger.Error(ctx, "sandbox: scratch dir setup failed",
			zap.String("submission_id", req.SubmissionID),
			zap.Int("test_num", req.Test.TestNum), zap.Error(err))
		e.finish(&res, verdict.Outcome{StartFailed: true}, "", err.Error(), req.Test, dir)
		return res
	}

	outcome, stdout, stderr := e.execute(ctx, dir, req.Test)

	t := parseTimeFile(filepath.Join(dir, timingName))
	res.RealTimeMs = t.realMs
	res.UserTimeMs = t.userMs
	res.SysTimeMs = t.sysMs
	if t.userMs >= 0 && t.sysMs >= 0 {
		res.CPUTimeMs = t.userMs + t.sysMs
	}

	e.finish(&res, outcome, stdout, stderr, req.Test, dir)
	return res
}

// prepare lays out the scratch directory: fixtures, binary, stdin.
func (e *Engine) prepare(req RunRequest) (string, error) {
	dir := filepath.Join(e.cfg.WorkRoot, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for name, content := range req.Fixtures {
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(name)), content, 0o644); err != nil {
			return dir, err
		}
	}
	if err := os.WriteFile(filepath.Join(dir, binaryName), req.Binary, 0o755); err != nil {
		return dir, err
	}
	if err := os.WriteFile(filepath.Join(dir, stdinName), []byte(req.Test.Stdin), 0o644); err != nil {
		return dir, err
	}
	return dir, nil
}

// execute runs the sandbox command and maps the process outcome.
func (e *Engine) execute(ctx context.Context, dir string, tc model.TestCase) (verdict.Outcome, string, string) {
	timeoutSec := float64(tc.RefRealTimeMs) / 1000 * e.cfg.TimeoutMultiplier
	if timeoutSec < e.cfg.FloorTimeoutSec {
		timeoutSec = e.cfg.FloorTimeoutSec
	}
	capBytes := int64(float64(e.cfg.OutputCapBytes) * e.cfg.OutputCapMultiplier)

	cmdline := strings.NewReplacer(
		"{timeout}", fmt.Sprintf("%.3f", timeoutSec),
		"{stack}", fmt.Sprintf("%d", e.cfg.StackLimitKB),
	).Replace(e.cfg.RunTemplate)
	argv, err := shlex.Split(cmdline)
	if err != nil || len(argv) == 0 {
		return verdict.Outcome{StartFailed: true}, "", fmt.Sprintf("bad run template: %v", err)
	}

	// Backstop in case the timeout wrapper itself never exits.
	grace := time.Duration((timeoutSec + 10) * float64(time.Second))
	runCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir

	stdout := &cappedWriter{limit: capBytes}
	stdout.kill = func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	stderr := &cappedWriter{limit: stderrCap}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	out := verdict.Outcome{OutputExceeded: stdout.exceeded}
	switch {
	case runErr == nil:
	case stdout.exceeded:
		// killed by the output cap, exit status is ours
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			if out.ExitCode == timeoutExit || runCtx.Err() != nil {
				out.TimedOut = true
			}
		} else {
			out.StartFailed = true
			return out, "", runErr.Error()
		}
	}
	return out, stdout.String(), stderr.String()
}

// finish classifies and scores the run in place.
func (e *Engine) finish(res *model.ExecutionResult, out verdict.Outcome, stdout, stderr string, tc model.TestCase, dir string) {
	v := verdict.Classify(out, stdout, tc.ExpectedStdout)
	res.Verdict = v
	res.Stdout = verdict.DiscardOnTerminal(v, stdout)
	res.Stderr = stderr

	if v.Terminal() {
		res.Similarity = model.MinSimilarityNone
		res.Diffs = append(res.Diffs, model.DiffSummary{Item: "stdout", Diff: model.DiffUnavailable})
		for _, gf := range tc.GeneratedFiles {
			res.Diffs = append(res.Diffs, model.DiffSummary{Item: gf.Filename, Diff: model.DiffUnavailable})
		}
		return
	}

	script, edits := e.differ.Compute(verdict.Regularize(tc.ExpectedStdout), verdict.Regularize(stdout))
	res.Diffs = append(res.Diffs, model.DiffSummary{Item: "stdout", Diff: edits, Script: toSpans(script)})
	minSim := similarity.Score(tc.ExpectedStdout, stdout)

	for _, gf := range tc.GeneratedFiles {
		content, err := os.ReadFile(filepath.Join(dir, filepath.Base(gf.Filename)))
		if err != nil {
			// A required file the run never produced is fully dissimilar.
			res.Diffs = append(res.Diffs, model.DiffSummary{Item: gf.Filename, Diff: model.DiffUnavailable})
			minSim = 0
			continue
		}
		actual := string(content)
		fScript, fEdits := e.differ.Compute(verdict.Regularize(gf.Content), verdict.Regularize(actual))
		res.Diffs = append(res.Diffs, model.DiffSummary{Item: gf.Filename, Diff: fEdits, Script: toSpans(fScript)})
		res.OutputFiles = append(res.OutputFiles, model.GeneratedFile{Filename: gf.Filename, Content: actual})
		if s := similarity.Score(gf.Content, actual); s < minSim {
			minSim = s
		}
	}
	res.Similarity = minSim
}

func toSpans(spans []textdiff.Span) []model.DiffSpan {
	if len(spans) == 0 {
		return nil
	}
	out := make([]model.DiffSpan, len(spans))
	for i, s := range spans {
		out[i] = model.DiffSpan{Op: s.Op, Text: s.Text}
	}
	return out
}

// cappedWriter buffers up to limit bytes. The first write past the limit
// sets exceeded and fires kill once; the overflow itself is dropped.
type cappedWriter struct {
	buf      bytes.Buffer
	limit    int64
	exceeded bool
	kill     func()
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if w.exceeded {
		return len(p), nil
	}
	if int64(w.buf.Len())+int64(len(p)) > w.limit {
		w.exceeded = true
		if room := w.limit - int64(w.buf.Len()); room > 0 {
			w.buf.Write(p[:room])
		}
		if w.kill != nil {
			w.kill()
		}
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *cappedWriter) String() string { return w.buf.String() }
