package service

import (
	"context"

	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/sandbox"
)

// Compiler builds a source file and returns the binary and compiler log.
// Satisfied by *sandbox.Engine.
type Compiler interface {
	Compile(ctx context.Context, sourceName string, source []byte, template string) (binary []byte, log string, err error)
}

// Runner executes one (submission, test) sandbox run.
// Satisfied by *sandbox.Engine.
type Runner interface {
	Run(ctx context.Context, req sandbox.RunRequest) model.ExecutionResult
}

// ReferenceRunner is what ingestion needs from the engine.
// Satisfied by *sandbox.Engine.
type ReferenceRunner interface {
	Compiler
	RunReference(ctx context.Context, binary []byte, fixtures map[string][]byte, stdin string) (*sandbox.ReferenceRun, error)
}
