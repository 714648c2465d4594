// Package repository persists the grading records in MySQL.
package repository

import (
	"context"

	"hwjudge/internal/grader/model"
)

// SubmissionRepository accesses the submissions created by intake.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)
}

// CompileRepository stores the one compile record per submission.
type CompileRepository interface {
	Save(ctx context.Context, rec *model.CompileRecord) error
	GetBySubmission(ctx context.Context, submissionID string) (*model.CompileRecord, error)
}

// TestCaseRepository stores instructor reference material.
type TestCaseRepository interface {
	// ReplaceHomework wipes and re-ingests all tests of one (homework, type).
	ReplaceHomework(ctx context.Context, homework, typ string, tests []model.TestCase) error
	ListByHomework(ctx context.Context, homework, typ string) ([]model.TestCase, error)
}

// ExecutionResultRepository stores one row per (submission, test number).
type ExecutionResultRepository interface {
	Save(ctx context.Context, res *model.ExecutionResult) error
	ListBySubmission(ctx context.Context, submissionID string) ([]model.ExecutionResult, error)
	GetByTest(ctx context.Context, submissionID string, testNum int) (*model.ExecutionResult, error)
}

// AggregateRepository stores the per-submission aggregate. SaveAggregate
// doubles as the barrier's sink.
type AggregateRepository interface {
	SaveAggregate(ctx context.Context, agg *model.AggregateResult) error
	GetBySubmission(ctx context.Context, submissionID string) (*model.AggregateResult, error)
	// DeleteBatch removes aggregates of a withdrawn upload batch so they
	// can be regenerated. Returns the number of rows removed.
	DeleteBatch(ctx context.Context, uploadID string) (int64, error)
}
