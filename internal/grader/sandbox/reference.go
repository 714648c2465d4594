package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
)

// ReferenceRun is the outcome of running the instructor solution for one
// test during ingestion. Its stdout and generated files become the
// expected values every submission is compared against.
type ReferenceRun struct {
	Stdout         string
	GeneratedFiles []model.GeneratedFile
	CPUTimeMs      int64
	RealTimeMs     int64
}

// RunReference executes the instructor binary without the sandbox wrapper
// and with a generous fixed timeout. A non-zero exit is fatal: reference
// material must not be produced from a failing run.
func (e *Engine) RunReference(ctx context.Context, binary []byte, fixtures map[string][]byte, stdin string) (*ReferenceRun, error) {
	dir := filepath.Join(e.cfg.WorkRoot, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, appErr.Wrap(err, appErr.ReferenceRunFailed)
	}
	defer os.RemoveAll(dir)

	skip := map[string]bool{binaryName: true, stdinName: true, timingName: true}
	for name, content := range fixtures {
		base := filepath.Base(name)
		skip[base] = true
		if err := os.WriteFile(filepath.Join(dir, base), content, 0o644); err != nil {
			return nil, appErr.Wrap(err, appErr.ReferenceRunFailed)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, binaryName), binary, 0o755); err != nil {
		return nil, appErr.Wrap(err, appErr.ReferenceRunFailed)
	}
	if err := os.WriteFile(filepath.Join(dir, stdinName), []byte(stdin), 0o644); err != nil {
		return nil, appErr.Wrap(err, appErr.ReferenceRunFailed)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.ReferenceTimeoutSec*float64(time.Second)))
	defer cancel()

	stdout := &cappedWriter{limit: int64(float64(e.cfg.OutputCapBytes) * e.cfg.OutputCapMultiplier)}
	cmd := exec.CommandContext(runCtx, "/bin/bash", "-c",
		"{ time ./"+binaryName+" < "+stdinName+" ; } 2> "+timingName)
	cmd.Dir = dir
	cmd.Stdout = stdout

	if err := cmd.Run(); err != nil {
		return nil, appErr.Wrapf(err, appErr.ReferenceRunFailed, "reference solution exited abnormally")
	}

	t := parseTimeFile(filepath.Join(dir, timingName))
	run := &ReferenceRun{
		Stdout:     stdout.String(),
		RealTimeMs: t.realMs,
	}
	if t.userMs >= 0 && t.sysMs >= 0 {
		run.CPUTimeMs = t.userMs + t.sysMs
	} else {
		run.CPUTimeMs = model.TimeUnavailableMs
	}

	// Everything left in the scratch dir that we did not put there is a
	// file the solution generated.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.ReferenceRunFailed)
	}
	for _, entry := range entries {
		if entry.IsDir() || skip[entry.Name()] {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, appErr.Wrap(err, appErr.ReferenceRunFailed)
		}
		run.GeneratedFiles = append(run.GeneratedFiles, model.GeneratedFile{
			Filename: entry.Name(),
			Content:  string(content),
		})
	}
	return run, nil
}
