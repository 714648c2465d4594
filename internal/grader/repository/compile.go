package repository

import (
	"context"
	"database/sql"
	"errors"

	"hwjudge/internal/common/db"
	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
)

type compileRepository struct {
	db *db.MySQL
}

var _ CompileRepository = (*compileRepository)(nil)

// NewCompileRepository creates a MySQL-backed compile record repository.
func NewCompileRepository(database *db.MySQL) CompileRepository {
	return &compileRepository{db: database}
}

// Save upserts so a redelivered compile job cannot fail on the unique key.
func (r *compileRepository) Save(ctx context.Context, rec *model.CompileRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO compile_records (submission_id, state, message)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state), message = VALUES(message)`,
		rec.SubmissionID, rec.State, rec.Message)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	return nil
}

func (r *compileRepository) GetBySubmission(ctx context.Context, submissionID string) (*model.CompileRecord, error) {
	var rec model.CompileRecord
	err := r.db.QueryRow(ctx, `
		SELECT submission_id, state, message
		FROM compile_records WHERE submission_id = ?`, submissionID).
		Scan(&rec.SubmissionID, &rec.State, &rec.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.New(appErr.CompileNotFound)
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return &rec, nil
}
