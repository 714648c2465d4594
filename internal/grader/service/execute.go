package service

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"hwjudge/internal/common/mq"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/barrier"
	"hwjudge/internal/grader/dispatch"
	"hwjudge/internal/grader/fixture"
	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/repository"
	"hwjudge/internal/grader/sandbox"
	"hwjudge/internal/grader/schedule"
	appErr "hwjudge/pkg/errors"
	"hwjudge/pkg/utils/logger"
)

// ExecuteConfig holds the execute stage settings.
type ExecuteConfig struct {
	BinariesBucket string `yaml:"binariesBucket"`
}

// ExecuteService consumes execute jobs and fans each submission out over
// its test cases: scheduler decides the order, the shared pool bounds the
// concurrency, every result lands in MySQL and the completion barrier.
type ExecuteService struct {
	cfg      ExecuteConfig
	subs     repository.SubmissionRepository
	compiles repository.CompileRepository
	tests    repository.TestCaseRepository
	results  repository.ExecutionResultRepository
	fixtures *fixture.Store
	storage  storage.ObjectStorage
	engine   Runner
	pool     *dispatch.Pool
	barrier  *barrier.Barrier
	queue    mq.MessageQueue
}

// NewExecuteService wires the execute stage.
func NewExecuteService(
	cfg ExecuteConfig,
	subs repository.SubmissionRepository,
	compiles repository.CompileRepository,
	tests repository.TestCaseRepository,
	results repository.ExecutionResultRepository,
	fixtures *fixture.Store,
	objStorage storage.ObjectStorage,
	engine Runner,
	pool *dispatch.Pool,
	bar *barrier.Barrier,
	queue mq.MessageQueue,
) *ExecuteService {
	return &ExecuteService{
		cfg:      cfg,
		subs:     subs,
		compiles: compiles,
		tests:    tests,
		results:  results,
		fixtures: fixtures,
		storage:  objStorage,
		engine:   engine,
		pool:     pool,
		barrier:  bar,
		queue:    queue,
	}
}

// Register subscribes the stage handler on the execute topic.
func (s *ExecuteService) Register(ctx context.Context) error {
	return s.queue.Subscribe(ctx, TopicExecuteRequested, s.handleExecute)
}

func (s *ExecuteService) handleExecute(ctx context.Context, msg *mq.Message) error {
	var job model.ExecuteJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return appErr.Wrap(err, appErr.InvalidParams)
	}

	sub, err := s.subs.GetByID(ctx, job.SubmissionID)
	if err != nil {
		return err
	}
	rec, err := s.compiles.GetBySubmission(ctx, sub.ID)
	if err != nil {
		return err
	}
	if rec.State != model.CompileSuccess {
		// An execute job must never outrun its compile record.
		logger.Warn(ctx, "execute: compile state is not success, dropping",
			zap.String("submission_id", sub.ID), zap.String("state", rec.State))
		return nil
	}

	tests, err := s.tests.ListByHomework(ctx, job.Homework, job.Type)
	if err != nil {
		return err
	}
	if len(tests) == 0 {
		logger.Warn(ctx, "execute: no tests ingested, dropping",
			zap.String("homework", job.Homework), zap.String("type", job.Type),
			zap.String("submission_id", sub.ID))
		return nil
	}

	graph, err := schedule.Build(tests)
	if err != nil {
		// Ingestion validation should have caught this; nothing executors
		// can do about a broken graph.
		logger.Error(ctx, "execute: dependency graph is invalid",
			zap.String("homework", job.Homework), zap.String("type", job.Type), zap.Error(err))
		return nil
	}

	fixtures, err := s.fixtures.Fixtures(ctx, job.Homework, job.Type)
	if err != nil {
		return err
	}
	binary, err := s.download(ctx, job.BinaryKey)
	if err != nil {
		return err
	}

	return s.runAll(ctx, sub, tests, graph, fixtures, binary)
}

type runDone struct {
	test int
	res  model.ExecutionResult
}

// runAll drives the scheduler until every test has produced exactly one
// result, real or synthetic. The loop is the only goroutine touching the
// scheduler; workers just execute and report back.
func (s *ExecuteService) runAll(ctx context.Context, sub *model.Submission, tests []model.TestCase, graph *schedule.Graph, fixtures map[string][]byte, binary []byte) error {
	byNum := make(map[int]model.TestCase, len(tests))
	for _, tc := range tests {
		byNum[tc.TestNum] = tc
	}
	expected := len(tests)
	sched := schedule.NewScheduler(graph)
	completed := make(chan runDone, expected)

	pending := 0
	launch := func(nums []int) error {
		for _, n := range nums {
			tc := byNum[n]
			err := s.pool.Submit(ctx, func() {
				res := s.engine.Run(ctx, sandbox.RunRequest{
					SubmissionID: sub.ID,
					Binary:       binary,
					Fixtures:     fixtures,
					Test:         tc,
				})
				completed <- runDone{test: tc.TestNum, res: res}
			})
			if err != nil {
				return err
			}
			pending++
		}
		return nil
	}

	if err := launch(sched.Next()); err != nil {
		return err
	}

	for pending > 0 {
		var d runDone
		select {
		case d = <-completed:
		case <-ctx.Done():
			return ctx.Err()
		}
		pending--

		s.record(ctx, sub, &d.res, byNum[d.test].RefCPUTimeMs, expected)

		pruned := sched.Complete(d.test, d.res.Verdict == model.VerdictAC)
		for _, p := range pruned {
			skip := skipResult(sub, byNum[p])
			s.record(ctx, sub, &skip, byNum[p].RefCPUTimeMs, expected)
		}

		if err := launch(sched.Next()); err != nil {
			return err
		}
	}
	return nil
}

// record persists one result and feeds the barrier. A failure for one test
// is logged and absorbed: aborting here would redeliver the whole job and
// double-count the entries already pushed, while the barrier TTL cleans up
// anything a lost append leaves behind.
func (s *ExecuteService) record(ctx context.Context, sub *model.Submission, res *model.ExecutionResult, refCPUMs int64, expected int) {
	if err := s.results.Save(ctx, res); err != nil {
		logger.Error(ctx, "execute: persisting result failed",
			zap.String("submission_id", sub.ID),
			zap.Int("test_num", res.TestNum), zap.Error(err))
	}
	agg, err := s.barrier.Record(ctx, sub, res, refCPUMs, expected)
	if err != nil {
		logger.Error(ctx, "execute: barrier append failed",
			zap.String("submission_id", sub.ID),
			zap.Int("test_num", res.TestNum), zap.Error(err))
		return
	}
	if agg != nil {
		logger.Info(ctx, "execute: submission aggregated",
			zap.String("submission_id", sub.ID), zap.Int("tier", agg.Tier))
	}
}

// skipResult synthesizes the record for a test the scheduler pruned.
func skipResult(sub *model.Submission, tc model.TestCase) model.ExecutionResult {
	return model.ExecutionResult{
		SubmissionID: sub.ID,
		Homework:     tc.Homework,
		Type:         tc.Type,
		TestNum:      tc.TestNum,
		Verdict:      model.VerdictSkip,
		UserTimeMs:   model.TimeUnavailableMs,
		SysTimeMs:    model.TimeUnavailableMs,
		RealTimeMs:   model.TimeUnavailableMs,
		CPUTimeMs:    model.TimeUnavailableMs,
		Similarity:   model.MinSimilarityNone,
		CreatedAt:    time.Now(),
	}
}

func (s *ExecuteService) download(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.storage.GetObject(ctx, s.cfg.BinariesBucket, key)
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
