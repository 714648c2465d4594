package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"

	appErr "hwjudge/pkg/errors"
)

const defaultCompileTemplate = "g++ -O2 -std=c++17 -o {out} {src}"

const compileTimeout = 60 * time.Second

// Compile builds a source file in a throwaway directory using the given
// command template ({src} and {out} placeholders). A diagnostics-producing
// compiler failure returns a CompileFailed error with the raw stderr as the
// log; anything else is an infrastructure error.
func (e *Engine) Compile(ctx context.Context, sourceName string, source []byte, template string) (binary []byte, log string, err error) {
	if template == "" {
		template = defaultCompileTemplate
	}
	dir := filepath.Join(e.cfg.WorkRoot, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", appErr.Wrap(err, appErr.GraderSystemError)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, filepath.Base(sourceName))
	outPath := filepath.Join(dir, binaryName)
	if err := os.WriteFile(srcPath, source, 0o644); err != nil {
		return nil, "", appErr.Wrap(err, appErr.GraderSystemError)
	}

	cmdline := strings.NewReplacer("{src}", srcPath, "{out}", outPath).Replace(template)
	argv, err := shlex.Split(cmdline)
	if err != nil || len(argv) == 0 {
		return nil, "", appErr.Newf(appErr.GraderSystemError, "bad compile template %q: %v", template, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, compileTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, stderr.String(), appErr.New(appErr.CompileFailed)
		}
		return nil, "", appErr.Wrap(runErr, appErr.GraderSystemError)
	}

	binary, err = os.ReadFile(outPath)
	if err != nil {
		return nil, stderr.String(), appErr.Wrap(err, appErr.GraderSystemError)
	}
	return binary, stderr.String(), nil
}
