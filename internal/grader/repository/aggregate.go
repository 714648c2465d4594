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

type aggregateRepository struct {
	db *db.MySQL
}

var _ AggregateRepository = (*aggregateRepository)(nil)

// NewAggregateRepository creates a MySQL-backed aggregate repository.
func NewAggregateRepository(database *db.MySQL) AggregateRepository {
	return &aggregateRepository{db: database}
}

func (r *aggregateRepository) SaveAggregate(ctx context.Context, agg *model.AggregateResult) error {
	verdicts, err := json.Marshal(agg.Verdicts)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO aggregate_results
			(submission_id, homework, type, upload_id, avg_cpu_ratio,
			 min_similarity, verdicts, tier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			avg_cpu_ratio = VALUES(avg_cpu_ratio), min_similarity = VALUES(min_similarity),
			verdicts = VALUES(verdicts), tier = VALUES(tier)`,
		agg.SubmissionID, agg.Homework, agg.Type, agg.UploadID, agg.AvgCPURatio,
		agg.MinSimilarity, verdicts, agg.Tier, agg.CreatedAt)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	return nil
}

func (r *aggregateRepository) GetBySubmission(ctx context.Context, submissionID string) (*model.AggregateResult, error) {
	var agg model.AggregateResult
	var verdicts []byte
	err := r.db.QueryRow(ctx, `
		SELECT submission_id, homework, type, upload_id, avg_cpu_ratio,
		       min_similarity, verdicts, tier, created_at
		FROM aggregate_results WHERE submission_id = ?`, submissionID).
		Scan(&agg.SubmissionID, &agg.Homework, &agg.Type, &agg.UploadID,
			&agg.AvgCPURatio, &agg.MinSimilarity, &verdicts, &agg.Tier, &agg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.New(appErr.AggregatePending)
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if err := json.Unmarshal(verdicts, &agg.Verdicts); err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return &agg, nil
}

func (r *aggregateRepository) DeleteBatch(ctx context.Context, uploadID string) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM aggregate_results WHERE upload_id = ?`, uploadID)
	if err != nil {
		return 0, appErr.Wrap(err, appErr.DatabaseError)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, appErr.Wrap(err, appErr.DatabaseError)
	}
	return n, nil
}
