package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hwjudge/internal/common/mq"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/repository"
	appErr "hwjudge/pkg/errors"
	"hwjudge/pkg/utils/logger"
)

// CompileConfig holds the compile stage settings.
type CompileConfig struct {
	UploadsBucket   string `yaml:"uploadsBucket"`
	BinariesBucket  string `yaml:"binariesBucket"`
	CompileTemplate string `yaml:"compileTemplate"`
}

// CompileService consumes compile jobs, builds submissions and hands
// runnable ones to the execute stage.
type CompileService struct {
	cfg      CompileConfig
	subs     repository.SubmissionRepository
	compiles repository.CompileRepository
	aggs     repository.AggregateRepository
	storage  storage.ObjectStorage
	engine   Compiler
	queue    mq.MessageQueue
}

// NewCompileService wires the compile stage.
func NewCompileService(
	cfg CompileConfig,
	subs repository.SubmissionRepository,
	compiles repository.CompileRepository,
	aggs repository.AggregateRepository,
	objStorage storage.ObjectStorage,
	engine Compiler,
	queue mq.MessageQueue,
) *CompileService {
	return &CompileService{
		cfg:      cfg,
		subs:     subs,
		compiles: compiles,
		aggs:     aggs,
		storage:  objStorage,
		engine:   engine,
		queue:    queue,
	}
}

// Register subscribes the stage handler on the compile topic.
func (s *CompileService) Register(ctx context.Context) error {
	return s.queue.Subscribe(ctx, TopicCompileRequested, s.handleCompile)
}

func (s *CompileService) handleCompile(ctx context.Context, msg *mq.Message) error {
	var job model.CompileJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		// A garbled payload can never succeed; let the retry path dead-letter it.
		return appErr.Wrap(err, appErr.InvalidParams)
	}

	sub, err := s.subs.GetByID(ctx, job.SubmissionID)
	if err != nil {
		return err
	}

	source, err := s.download(ctx, s.cfg.UploadsBucket, sub.ID)
	if err != nil {
		return err
	}

	binary, compileLog, err := s.engine.Compile(ctx, sub.ID, source, s.cfg.CompileTemplate)
	redacted := redactPaths(compileLog, sub.ID, sub.OriginalName)

	if appErr.Is(err, appErr.CompileFailed) {
		logger.Info(ctx, "compile: submission failed to compile",
			zap.String("submission_id", sub.ID))
		if err := s.compiles.Save(ctx, &model.CompileRecord{
			SubmissionID: sub.ID,
			State:        model.CompileError,
			Message:      redacted,
		}); err != nil {
			return err
		}
		// No tests ever run, so the aggregate is written here instead of
		// by the completion barrier.
		return s.aggs.SaveAggregate(ctx, &model.AggregateResult{
			SubmissionID:  sub.ID,
			Homework:      sub.Homework,
			Type:          sub.Type,
			UploadID:      sub.UploadID,
			AvgCPURatio:   model.AvgCPURatioNone,
			MinSimilarity: model.MinSimilarityNone,
			Verdicts:      []model.Verdict{model.VerdictCE},
			Tier:          model.TierNoCompile,
			CreatedAt:     time.Now(),
		})
	}
	if err != nil {
		return err
	}

	if err := s.compiles.Save(ctx, &model.CompileRecord{
		SubmissionID: sub.ID,
		State:        model.CompileSuccess,
		Message:      redacted,
	}); err != nil {
		return err
	}

	binaryKey := "binaries/" + sub.ID
	if err := s.storage.PutObject(ctx, s.cfg.BinariesBucket, binaryKey,
		bytes.NewReader(binary), int64(len(binary)), "application/octet-stream"); err != nil {
		return appErr.Wrap(err, appErr.StorageError)
	}

	body, err := json.Marshal(model.ExecuteJob{
		SubmissionID: sub.ID,
		Homework:     sub.Homework,
		Type:         sub.Type,
		BinaryKey:    binaryKey,
	})
	if err != nil {
		return appErr.Wrap(err, appErr.InternalServerError)
	}
	out := mq.NewMessage(body)
	out.ID = uuid.NewString()
	return s.queue.Publish(ctx, TopicExecuteRequested, out)
}

func (s *CompileService) download(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.storage.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	return data, nil
}

// redactPaths rewrites scratch-directory paths in compiler diagnostics to
// the student's original filename so internal layout never leaks into
// feedback.
func redactPaths(diagnostics, storedName, originalName string) string {
	if diagnostics == "" || storedName == "" {
		return diagnostics
	}
	re := regexp.MustCompile(`[^\s:]*` + regexp.QuoteMeta(storedName))
	return re.ReplaceAllString(diagnostics, originalName)
}
