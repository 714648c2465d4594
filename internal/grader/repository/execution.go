package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"hwjudge/internal/common/db"
	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
)

type executionResultRepository struct {
	db *db.MySQL
}

var _ ExecutionResultRepository = (*executionResultRepository)(nil)

// NewExecutionResultRepository creates a MySQL-backed execution result
// repository.
func NewExecutionResultRepository(database *db.MySQL) ExecutionResultRepository {
	return &executionResultRepository{db: database}
}

// Save upserts on (submission_id, test_num) so an at-least-once redelivery
// rewrites the row instead of erroring.
func (r *executionResultRepository) Save(ctx context.Context, res *model.ExecutionResult) error {
	files, err := json.Marshal(res.OutputFiles)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	diffs, err := json.Marshal(res.Diffs)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO execution_results
			(submission_id, homework, type, test_num, verdict,
			 user_time_ms, sys_time_ms, real_time_ms, cpu_time_ms,
			 stdout, stderr, output_files, diffs, similarity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			verdict = VALUES(verdict), user_time_ms = VALUES(user_time_ms),
			sys_time_ms = VALUES(sys_time_ms), real_time_ms = VALUES(real_time_ms),
			cpu_time_ms = VALUES(cpu_time_ms), stdout = VALUES(stdout),
			stderr = VALUES(stderr), output_files = VALUES(output_files),
			diffs = VALUES(diffs), similarity = VALUES(similarity)`,
		res.SubmissionID, res.Homework, res.Type, res.TestNum, res.Verdict,
		res.UserTimeMs, res.SysTimeMs, res.RealTimeMs, res.CPUTimeMs,
		res.Stdout, res.Stderr, files, diffs, res.Similarity, res.CreatedAt)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	return nil
}

func (r *executionResultRepository) ListBySubmission(ctx context.Context, submissionID string) ([]model.ExecutionResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT submission_id, homework, type, test_num, verdict,
		       user_time_ms, sys_time_ms, real_time_ms, cpu_time_ms,
		       stdout, stderr, output_files, diffs, similarity, created_at
		FROM execution_results WHERE submission_id = ?
		ORDER BY test_num ASC`, submissionID)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	defer rows.Close()

	var results []model.ExecutionResult
	for rows.Next() {
		res, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return results, nil
}

func (r *executionResultRepository) GetByTest(ctx context.Context, submissionID string, testNum int) (*model.ExecutionResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT submission_id, homework, type, test_num, verdict,
		       user_time_ms, sys_time_ms, real_time_ms, cpu_time_ms,
		       stdout, stderr, output_files, diffs, similarity, created_at
		FROM execution_results WHERE submission_id = ? AND test_num = ?`,
		submissionID, testNum)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, appErr.Wrap(err, appErr.DatabaseError)
		}
		return nil, appErr.New(appErr.ResultNotFound)
	}
	return scanExecution(rows)
}

func scanExecution(rows *sql.Rows) (*model.ExecutionResult, error) {
	var res model.ExecutionResult
	var files, diffs []byte
	if err := rows.Scan(&res.SubmissionID, &res.Homework, &res.Type, &res.TestNum,
		&res.Verdict, &res.UserTimeMs, &res.SysTimeMs, &res.RealTimeMs, &res.CPUTimeMs,
		&res.Stdout, &res.Stderr, &files, &diffs, &res.Similarity, &res.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.New(appErr.ResultNotFound)
		}
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if err := json.Unmarshal(files, &res.OutputFiles); err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if err := json.Unmarshal(diffs, &res.Diffs); err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return &res, nil
}
