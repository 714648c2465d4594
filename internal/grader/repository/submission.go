package repository

import (
	"context"
	"database/sql"
	"errors"

	"hwjudge/internal/common/db"
	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
)

type submissionRepository struct {
	db *db.MySQL
}

var _ SubmissionRepository = (*submissionRepository)(nil)

// NewSubmissionRepository creates a MySQL-backed submission repository.
func NewSubmissionRepository(database *db.MySQL) SubmissionRepository {
	return &submissionRepository{db: database}
}

func (r *submissionRepository) Create(ctx context.Context, sub *model.Submission) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO submissions (id, student_id, homework, type, upload_id, original_name, uploaded_at, on_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.StudentID, sub.Homework, sub.Type, sub.UploadID,
		sub.OriginalName, sub.UploadedAt, sub.OnTime)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	return nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	err := r.db.QueryRow(ctx, `
		SELECT id, student_id, homework, type, upload_id, original_name, uploaded_at, on_time
		FROM submissions WHERE id = ?`, id).
		Scan(&sub.ID, &sub.StudentID, &sub.Homework, &sub.Type, &sub.UploadID,
			&sub.OriginalName, &sub.UploadedAt, &sub.OnTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return &sub, nil
}
