package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"hwjudge/internal/common/mq"
	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
)

func compileTestConfig() CompileConfig {
	return CompileConfig{
		UploadsBucket:   "uploads",
		BinariesBucket:  "binaries",
		CompileTemplate: "g++ -O2 -std=c++17 -o {out} {src}",
	}
}

func compileJobMessage(t *testing.T, submissionID string) *mq.Message {
	t.Helper()
	body, err := json.Marshal(model.CompileJob{SubmissionID: submissionID})
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return mq.NewMessage(body)
}

func TestCompileSuccessPublishesExecuteJob(t *testing.T) {
	t.Parallel()

	sub := &model.Submission{
		ID:           "hw3_alice_1.cpp",
		StudentID:    "alice",
		Homework:     "hw3",
		Type:         "assignment",
		UploadID:     "batch-7",
		OriginalName: "main.cpp",
		UploadedAt:   time.Now(),
	}
	subs := newFakeSubmissionRepo(sub)
	compiles := newFakeCompileRepo()
	aggs := newFakeAggregateRepo()
	objects := newFakeObjectStorage()
	queue := newFakeQueue()
	engine := &fakeCompiler{binary: []byte{0x7f, 'E', 'L', 'F'}}

	if err := objects.PutObject(context.Background(), "uploads", sub.ID,
		bytes.NewReader([]byte("int main(){}")), -1, "text/plain"); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	svc := NewCompileService(compileTestConfig(), subs, compiles, aggs, objects, engine, queue)
	if err := svc.handleCompile(context.Background(), compileJobMessage(t, sub.ID)); err != nil {
		t.Fatalf("handleCompile: %v", err)
	}

	rec, err := compiles.GetBySubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("compile record: %v", err)
	}
	if rec.State != model.CompileSuccess {
		t.Fatalf("compile state = %q, want %q", rec.State, model.CompileSuccess)
	}

	binary, ok := objects.get("binaries", "binaries/"+sub.ID)
	if !ok {
		t.Fatal("compiled binary was not uploaded")
	}
	if !bytes.Equal(binary, engine.binary) {
		t.Fatalf("uploaded binary = %v, want %v", binary, engine.binary)
	}

	msgs := queue.messages(TopicExecuteRequested)
	if len(msgs) != 1 {
		t.Fatalf("published %d execute jobs, want 1", len(msgs))
	}
	var job model.ExecuteJob
	if err := json.Unmarshal(msgs[0].Body, &job); err != nil {
		t.Fatalf("unmarshal execute job: %v", err)
	}
	want := model.ExecuteJob{
		SubmissionID: sub.ID,
		Homework:     "hw3",
		Type:         "assignment",
		BinaryKey:    "binaries/" + sub.ID,
	}
	if job != want {
		t.Fatalf("execute job = %+v, want %+v", job, want)
	}
	if msgs[0].ID == "" {
		t.Fatal("execute job message has no ID")
	}

	if _, err := aggs.GetBySubmission(context.Background(), sub.ID); !appErr.Is(err, appErr.AggregatePending) {
		t.Fatalf("aggregate after successful compile: got err %v, want pending", err)
	}
}

func TestCompileErrorWritesAggregateDirectly(t *testing.T) {
	t.Parallel()

	sub := &model.Submission{
		ID:           "hw3_bob_2.cpp",
		StudentID:    "bob",
		Homework:     "hw3",
		Type:         "challenge",
		UploadID:     "batch-7",
		OriginalName: "solution.cpp",
	}
	subs := newFakeSubmissionRepo(sub)
	compiles := newFakeCompileRepo()
	aggs := newFakeAggregateRepo()
	objects := newFakeObjectStorage()
	queue := newFakeQueue()
	engine := &fakeCompiler{
		log: "/tmp/scratch/hw3_bob_2.cpp:4:1: error: expected ';'",
		err: appErr.New(appErr.CompileFailed),
	}

	if err := objects.PutObject(context.Background(), "uploads", sub.ID,
		bytes.NewReader([]byte("int main(){")), -1, "text/plain"); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	svc := NewCompileService(compileTestConfig(), subs, compiles, aggs, objects, engine, queue)
	if err := svc.handleCompile(context.Background(), compileJobMessage(t, sub.ID)); err != nil {
		t.Fatalf("handleCompile: %v", err)
	}

	rec, err := compiles.GetBySubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("compile record: %v", err)
	}
	if rec.State != model.CompileError {
		t.Fatalf("compile state = %q, want %q", rec.State, model.CompileError)
	}
	if rec.Message != "solution.cpp:4:1: error: expected ';'" {
		t.Fatalf("compile message = %q, scratch path not redacted", rec.Message)
	}

	agg, err := aggs.GetBySubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Tier != model.TierNoCompile {
		t.Fatalf("tier = %d, want %d", agg.Tier, model.TierNoCompile)
	}
	if len(agg.Verdicts) != 1 || agg.Verdicts[0] != model.VerdictCE {
		t.Fatalf("verdicts = %v, want [CE]", agg.Verdicts)
	}
	if agg.AvgCPURatio != model.AvgCPURatioNone || agg.MinSimilarity != model.MinSimilarityNone {
		t.Fatalf("sentinels = (%g, %g), want (%d, %d)",
			agg.AvgCPURatio, agg.MinSimilarity, model.AvgCPURatioNone, model.MinSimilarityNone)
	}
	if agg.UploadID != sub.UploadID {
		t.Fatalf("upload id = %q, want %q", agg.UploadID, sub.UploadID)
	}

	if n := len(queue.messages(TopicExecuteRequested)); n != 0 {
		t.Fatalf("published %d execute jobs after compile error, want 0", n)
	}

	if _, ok := objects.get("binaries", "binaries/"+sub.ID); ok {
		t.Fatal("binary uploaded despite compile error")
	}
}

func TestCompileUnknownSubmissionReturnsError(t *testing.T) {
	t.Parallel()

	svc := NewCompileService(compileTestConfig(),
		newFakeSubmissionRepo(), newFakeCompileRepo(), newFakeAggregateRepo(),
		newFakeObjectStorage(), &fakeCompiler{}, newFakeQueue())

	err := svc.handleCompile(context.Background(), compileJobMessage(t, "missing"))
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("err = %v, want SubmissionNotFound", err)
	}
}

func TestCompileGarbledPayloadRejected(t *testing.T) {
	t.Parallel()

	svc := NewCompileService(compileTestConfig(),
		newFakeSubmissionRepo(), newFakeCompileRepo(), newFakeAggregateRepo(),
		newFakeObjectStorage(), &fakeCompiler{}, newFakeQueue())

	err := svc.handleCompile(context.Background(), mq.NewMessage([]byte("{not json")))
	if !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("err = %v, want InvalidParams", err)
	}
}

func TestRedactPaths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		diag     string
		stored   string
		original string
		want     string
	}{
		{
			name:     "absolute path",
			diag:     "/var/run/judge/x/hw1_s_1.cpp:3: error",
			stored:   "hw1_s_1.cpp",
			original: "prog.cpp",
			want:     "prog.cpp:3: error",
		},
		{
			name:     "bare stored name",
			diag:     "hw1_s_1.cpp: warning: unused variable",
			stored:   "hw1_s_1.cpp",
			original: "prog.cpp",
			want:     "prog.cpp: warning: unused variable",
		},
		{
			name:     "multiple occurrences",
			diag:     "/a/hw1_s_1.cpp:1: x\n/a/hw1_s_1.cpp:2: y",
			stored:   "hw1_s_1.cpp",
			original: "prog.cpp",
			want:     "prog.cpp:1: x\nprog.cpp:2: y",
		},
		{
			name:     "empty diagnostics",
			diag:     "",
			stored:   "hw1_s_1.cpp",
			original: "prog.cpp",
			want:     "",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := redactPaths(tc.diag, tc.stored, tc.original); got != tc.want {
				t.Fatalf("redactPaths = %q, want %q", got, tc.want)
			}
		})
	}
}
