package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"hwjudge/internal/common/db"
	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
)

type testCaseRepository struct {
	db *db.MySQL
}

var _ TestCaseRepository = (*testCaseRepository)(nil)

// NewTestCaseRepository creates a MySQL-backed test case repository.
func NewTestCaseRepository(database *db.MySQL) TestCaseRepository {
	return &testCaseRepository{db: database}
}

// ReplaceHomework swaps the full test set of one (homework, type) in a
// single transaction so graders never observe a half-ingested homework.
func (r *testCaseRepository) ReplaceHomework(ctx context.Context, homework, typ string, tests []model.TestCase) error {
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM test_cases WHERE homework = ? AND type = ?`, homework, typ); err != nil {
			return err
		}
		for i := range tests {
			tc := &tests[i]
			files, err := json.Marshal(tc.GeneratedFiles)
			if err != nil {
				return err
			}
			preds, err := json.Marshal(tc.Predecessors)
			if err != nil {
				return err
			}
			deps, err := json.Marshal(tc.Dependents)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO test_cases
					(homework, type, test_num, description, stdin, expected_stdout,
					 generated_files, ref_cpu_time_ms, ref_real_time_ms, predecessors, dependents)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				homework, typ, tc.TestNum, tc.Description, tc.Stdin, tc.ExpectedStdout,
				files, tc.RefCPUTimeMs, tc.RefRealTimeMs, preds, deps); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	return nil
}

func (r *testCaseRepository) ListByHomework(ctx context.Context, homework, typ string) ([]model.TestCase, error) {
	rows, err := r.db.Query(ctx, `
		SELECT homework, type, test_num, description, stdin, expected_stdout,
		       generated_files, ref_cpu_time_ms, ref_real_time_ms, predecessors, dependents
		FROM test_cases WHERE homework = ? AND type = ?
		ORDER BY test_num ASC`, homework, typ)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	defer rows.Close()

	var tests []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		var files, preds, deps []byte
		if err := rows.Scan(&tc.Homework, &tc.Type, &tc.TestNum, &tc.Description,
			&tc.Stdin, &tc.ExpectedStdout, &files, &tc.RefCPUTimeMs, &tc.RefRealTimeMs,
			&preds, &deps); err != nil {
			return nil, appErr.Wrap(err, appErr.DatabaseError)
		}
		if err := json.Unmarshal(files, &tc.GeneratedFiles); err != nil {
			return nil, appErr.Wrap(err, appErr.DatabaseError)
		}
		if err := json.Unmarshal(preds, &tc.Predecessors); err != nil {
			return nil, appErr.Wrap(err, appErr.DatabaseError)
		}
		if err := json.Unmarshal(deps, &tc.Dependents); err != nil {
			return nil, appErr.Wrap(err, appErr.DatabaseError)
		}
		tests = append(tests, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return tests, nil
}
