package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"hwjudge/internal/common/mq"
	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/repository"
	appErr "hwjudge/pkg/errors"
)

// IntakeService records an accepted submission and kicks off its grading.
// The upload HTTP surface lives outside this repo; whatever accepts the
// file calls Submit.
type IntakeService struct {
	subs     repository.SubmissionRepository
	aggs     repository.AggregateRepository
	producer mq.Producer
}

// NewIntakeService creates the intake boundary service.
func NewIntakeService(subs repository.SubmissionRepository, aggs repository.AggregateRepository, producer mq.Producer) *IntakeService {
	return &IntakeService{subs: subs, aggs: aggs, producer: producer}
}

// Submit persists the submission record and publishes its compile job.
func (s *IntakeService) Submit(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" || sub.Homework == "" || sub.Type == "" {
		return appErr.New(appErr.InvalidParams)
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return err
	}
	return s.publishCompile(ctx, sub.ID)
}

// Resubmit re-publishes the compile job for an existing submission, used
// when an upload batch is withdrawn and regraded.
func (s *IntakeService) Resubmit(ctx context.Context, submissionID string) error {
	if _, err := s.subs.GetByID(ctx, submissionID); err != nil {
		return err
	}
	return s.publishCompile(ctx, submissionID)
}

// WithdrawBatch deletes the aggregate records of a withdrawn upload batch
// so resubmitted grading can regenerate them. Returns how many were removed.
func (s *IntakeService) WithdrawBatch(ctx context.Context, uploadID string) (int64, error) {
	if uploadID == "" {
		return 0, appErr.New(appErr.UploadBatchInvalid)
	}
	return s.aggs.DeleteBatch(ctx, uploadID)
}

func (s *IntakeService) publishCompile(ctx context.Context, submissionID string) error {
	body, err := json.Marshal(model.CompileJob{SubmissionID: submissionID})
	if err != nil {
		return appErr.Wrap(err, appErr.InternalServerError)
	}
	msg := mq.NewMessage(body)
	msg.ID = uuid.NewString()
	return s.producer.Publish(ctx, TopicCompileRequested, msg)
}
