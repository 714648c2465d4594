package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"hwjudge/internal/grader/fixture"
	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/repository"
	"hwjudge/internal/grader/schedule"
	appErr "hwjudge/pkg/errors"
	"hwjudge/pkg/utils/logger"
)

// TestDefinition is an instructor-authored test before the reference run
// fills in its expected outputs and timings.
type TestDefinition struct {
	TestNum      int    `yaml:"testNum" json:"test_num"`
	Description  string `yaml:"description" json:"description"`
	Stdin        string `yaml:"stdin" json:"stdin"`
	Predecessors []int  `yaml:"predecessors" json:"predecessors"`
}

// IngestRequest carries one homework's complete reference material.
type IngestRequest struct {
	Homework     string
	Type         string
	SolutionName string
	Solution     []byte
	Fixtures     map[string][]byte
	Tests        []TestDefinition
}

// ReferenceService turns instructor material into the test case records
// grading runs against. Ingestion wipes and replaces the whole homework.
type ReferenceService struct {
	tests           repository.TestCaseRepository
	fixtures        *fixture.Store
	engine          ReferenceRunner
	compileTemplate string
}

// NewReferenceService wires reference ingestion.
func NewReferenceService(tests repository.TestCaseRepository, fixtures *fixture.Store, engine ReferenceRunner, compileTemplate string) *ReferenceService {
	return &ReferenceService{
		tests:           tests,
		fixtures:        fixtures,
		engine:          engine,
		compileTemplate: compileTemplate,
	}
}

// Ingest validates the dependency graph, runs the instructor solution on
// every test to capture expected outputs and reference timings, stores the
// fixture pack and replaces the homework's test set.
func (s *ReferenceService) Ingest(ctx context.Context, req *IngestRequest) error {
	if req.Homework == "" || req.Type == "" {
		return appErr.New(appErr.InvalidParams)
	}
	if len(req.Tests) == 0 {
		return appErr.Newf(appErr.IngestFailed, "homework %s/%s has no tests", req.Homework, req.Type)
	}

	tests := make([]model.TestCase, len(req.Tests))
	for i, def := range req.Tests {
		tests[i] = model.TestCase{
			Homework:     req.Homework,
			Type:         req.Type,
			TestNum:      def.TestNum,
			Description:  def.Description,
			Stdin:        def.Stdin,
			Predecessors: def.Predecessors,
		}
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].TestNum < tests[j].TestNum })

	// A cycle or dangling edge would stall every grading run of this
	// homework, so it must be rejected here.
	graph, err := schedule.Build(tests)
	if err != nil {
		return err
	}

	binary, compileLog, err := s.engine.Compile(ctx, req.SolutionName, req.Solution, s.compileTemplate)
	if err != nil {
		if appErr.Is(err, appErr.CompileFailed) {
			return appErr.Newf(appErr.IngestFailed, "instructor solution does not compile: %s", compileLog)
		}
		return err
	}

	for i := range tests {
		run, err := s.engine.RunReference(ctx, binary, req.Fixtures, tests[i].Stdin)
		if err != nil {
			return appErr.Wrapf(err, appErr.ReferenceRunFailed, "test %d", tests[i].TestNum)
		}
		tests[i].ExpectedStdout = run.Stdout
		tests[i].GeneratedFiles = run.GeneratedFiles
		tests[i].RefCPUTimeMs = run.CPUTimeMs
		tests[i].RefRealTimeMs = run.RealTimeMs
		tests[i].Dependents = graph.Dependents(tests[i].TestNum)
	}

	if err := s.fixtures.Upload(ctx, req.Homework, req.Type, req.Fixtures); err != nil {
		return err
	}
	if err := s.tests.ReplaceHomework(ctx, req.Homework, req.Type, tests); err != nil {
		return err
	}
	logger.Info(ctx, "reference: homework ingested",
		zap.String("homework", req.Homework), zap.String("type", req.Type),
		zap.Int("tests", len(tests)))
	return nil
}
