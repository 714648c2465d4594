package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"hwjudge/internal/common/mq"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/sandbox"
	appErr "hwjudge/pkg/errors"
)

type fakeQueue struct {
	mu        sync.Mutex
	published map[string][]*mq.Message
	handlers  map[string]mq.HandlerFunc
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		published: make(map[string][]*mq.Message),
		handlers:  make(map[string]mq.HandlerFunc),
	}
}

func (q *fakeQueue) Publish(_ context.Context, topic string, message *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[topic] = append(q.published[topic], message)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, topic string, handler mq.HandlerFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = handler
	return nil
}

func (q *fakeQueue) SubscribeWithOptions(ctx context.Context, topic string, handler mq.HandlerFunc, _ *mq.SubscribeOptions) error {
	return q.Subscribe(ctx, topic, handler)
}

func (q *fakeQueue) Start() error                 { return nil }
func (q *fakeQueue) Stop() error                  { return nil }
func (q *fakeQueue) Ping(_ context.Context) error { return nil }
func (q *fakeQueue) Close() error                 { return nil }

func (q *fakeQueue) messages(topic string) []*mq.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*mq.Message(nil), q.published[topic]...)
}

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Submission
}

func newFakeSubmissionRepo(subs ...*model.Submission) *fakeSubmissionRepo {
	r := &fakeSubmissionRepo{subs: make(map[string]*model.Submission)}
	for _, sub := range subs {
		r.subs[sub.ID] = sub
	}
	return r
}

func (r *fakeSubmissionRepo) Create(_ context.Context, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
	return nil
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, id string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return sub, nil
}

type fakeCompileRepo struct {
	mu   sync.Mutex
	recs map[string]*model.CompileRecord
}

func newFakeCompileRepo() *fakeCompileRepo {
	return &fakeCompileRepo{recs: make(map[string]*model.CompileRecord)}
}

func (r *fakeCompileRepo) Save(_ context.Context, rec *model.CompileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.SubmissionID] = rec
	return nil
}

func (r *fakeCompileRepo) GetBySubmission(_ context.Context, id string) (*model.CompileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return nil, appErr.New(appErr.CompileNotFound)
	}
	return rec, nil
}

type fakeTestCaseRepo struct {
	mu    sync.Mutex
	tests []model.TestCase
}

func (r *fakeTestCaseRepo) ReplaceHomework(_ context.Context, homework, typ string, tests []model.TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tests[:0]
	for _, tc := range r.tests {
		if tc.Homework != homework || tc.Type != typ {
			kept = append(kept, tc)
		}
	}
	r.tests = append(kept, tests...)
	return nil
}

func (r *fakeTestCaseRepo) ListByHomework(_ context.Context, homework, typ string) ([]model.TestCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TestCase
	for _, tc := range r.tests {
		if tc.Homework == homework && tc.Type == typ {
			out = append(out, tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestNum < out[j].TestNum })
	return out, nil
}

type fakeResultRepo struct {
	mu       sync.Mutex
	rows     map[string]map[int]model.ExecutionResult
	failSave map[int]error
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{rows: make(map[string]map[int]model.ExecutionResult)}
}

func (r *fakeResultRepo) Save(_ context.Context, res *model.ExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failSave[res.TestNum]; ok {
		return err
	}
	if r.rows[res.SubmissionID] == nil {
		r.rows[res.SubmissionID] = make(map[int]model.ExecutionResult)
	}
	r.rows[res.SubmissionID][res.TestNum] = *res
	return nil
}

func (r *fakeResultRepo) ListBySubmission(_ context.Context, id string) ([]model.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ExecutionResult
	for _, res := range r.rows[id] {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestNum < out[j].TestNum })
	return out, nil
}

func (r *fakeResultRepo) GetByTest(_ context.Context, id string, testNum int) (*model.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.rows[id][testNum]
	if !ok {
		return nil, appErr.New(appErr.ResultNotFound)
	}
	return &res, nil
}

type fakeAggregateRepo struct {
	mu   sync.Mutex
	aggs map[string]*model.AggregateResult
}

func newFakeAggregateRepo() *fakeAggregateRepo {
	return &fakeAggregateRepo{aggs: make(map[string]*model.AggregateResult)}
}

func (r *fakeAggregateRepo) SaveAggregate(_ context.Context, agg *model.AggregateResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggs[agg.SubmissionID] = agg
	return nil
}

func (r *fakeAggregateRepo) GetBySubmission(_ context.Context, id string) (*model.AggregateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.aggs[id]
	if !ok {
		return nil, appErr.New(appErr.AggregatePending)
	}
	return agg, nil
}

func (r *fakeAggregateRepo) DeleteBatch(_ context.Context, uploadID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, agg := range r.aggs {
		if agg.UploadID == uploadID {
			delete(r.aggs, id)
			n++
		}
	}
	return n, nil
}

type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, appErr.New(appErr.ObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStorage) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeObjectStorage) StatObject(_ context.Context, bucket, key string) (storage.ObjectStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, appErr.New(appErr.ObjectNotFound)
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (f *fakeObjectStorage) RemoveObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeObjectStorage) get(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	return data, ok
}

type fakeCompiler struct {
	binary []byte
	log    string
	err    error
}

func (c *fakeCompiler) Compile(_ context.Context, _ string, _ []byte, _ string) ([]byte, string, error) {
	return c.binary, c.log, c.err
}

// fakeRunner returns canned results keyed by test number.
type fakeRunner struct {
	mu      sync.Mutex
	results map[int]model.ExecutionResult
	runs    []int
}

func (r *fakeRunner) Run(_ context.Context, req sandbox.RunRequest) model.ExecutionResult {
	r.mu.Lock()
	r.runs = append(r.runs, req.Test.TestNum)
	res := r.results[req.Test.TestNum]
	r.mu.Unlock()
	res.SubmissionID = req.SubmissionID
	res.Homework = req.Test.Homework
	res.Type = req.Test.Type
	res.TestNum = req.Test.TestNum
	return res
}

func (r *fakeRunner) ranTests() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]int(nil), r.runs...)
	sort.Ints(out)
	return out
}
