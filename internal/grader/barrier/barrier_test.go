package barrier

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hwjudge/internal/common/cache"
	"hwjudge/internal/grader/model"
)

type memorySink struct {
	mu    sync.Mutex
	saves []*model.AggregateResult
}

func (s *memorySink) SaveAggregate(_ context.Context, agg *model.AggregateResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, agg)
	return nil
}

func newTestBarrier(t *testing.T) (*Barrier, *memorySink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	sink := &memorySink{}
	return New(c, sink, time.Hour), sink, mr
}

func testSubmission() *model.Submission {
	return &model.Submission{
		ID: "sub-1", StudentID: "s42", Homework: "hw3",
		Type: "assignment", UploadID: "batch-7",
	}
}

func result(test int, v model.Verdict, cpuMs int64, sim float64) *model.ExecutionResult {
	return &model.ExecutionResult{
		SubmissionID: "sub-1", Homework: "hw3", Type: "assignment",
		TestNum: test, Verdict: v, CPUTimeMs: cpuMs, Similarity: sim,
	}
}

func TestBarrierHoldsUntilLastResult(t *testing.T) {
	t.Parallel()

	b, sink, _ := newTestBarrier(t)
	ctx := context.Background()
	sub := testSubmission()

	agg, err := b.Record(ctx, sub, result(1, model.VerdictAC, 40, 100), 40, 2)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if agg != nil {
		t.Fatal("aggregated before all results arrived")
	}
	if len(sink.saves) != 0 {
		t.Fatalf("sink received %d saves early", len(sink.saves))
	}

	agg, err = b.Record(ctx, sub, result(2, model.VerdictAC, 50, 100), 40, 2)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if agg == nil {
		t.Fatal("last result did not aggregate")
	}
	if len(sink.saves) != 1 {
		t.Fatalf("sink received %d saves, want 1", len(sink.saves))
	}
}

func TestBarrierAggregationArithmetic(t *testing.T) {
	t.Parallel()

	b, _, _ := newTestBarrier(t)
	ctx := context.Background()
	sub := testSubmission()

	// Middle test crashes: its timing is unavailable and its similarity
	// sentinel must be excluded from the minimum.
	if _, err := b.Record(ctx, sub, result(1, model.VerdictAC, 45, 100), 40, 3); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := b.Record(ctx, sub, result(2, model.VerdictRE, model.TimeUnavailableMs, model.MinSimilarityNone), 40, 3); err != nil {
		t.Fatalf("Record: %v", err)
	}
	agg, err := b.Record(ctx, sub, result(3, model.VerdictAC, 45, 87.5), 40, 3)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if agg == nil {
		t.Fatal("expected an aggregate")
	}

	// 45+45 student over 40+40 reference.
	if math.Abs(agg.AvgCPURatio-1.125) > 1e-9 {
		t.Fatalf("AvgCPURatio = %v, want 1.125", agg.AvgCPURatio)
	}
	if math.Abs(agg.MinSimilarity-87.5) > 1e-9 {
		t.Fatalf("MinSimilarity = %v, want 87.5", agg.MinSimilarity)
	}
	want := []model.Verdict{model.VerdictAC, model.VerdictRE, model.VerdictAC}
	if len(agg.Verdicts) != len(want) {
		t.Fatalf("Verdicts = %v, want %v", agg.Verdicts, want)
	}
	for i := range want {
		if agg.Verdicts[i] != want[i] {
			t.Fatalf("Verdicts = %v, want %v", agg.Verdicts, want)
		}
	}
	if agg.Tier != model.TierMixed {
		t.Fatalf("Tier = %d, want %d", agg.Tier, model.TierMixed)
	}
	if agg.UploadID != "batch-7" {
		t.Fatalf("UploadID = %q, want batch-7", agg.UploadID)
	}
}

func TestBarrierSentinelsWhenNothingContributes(t *testing.T) {
	t.Parallel()

	b, _, _ := newTestBarrier(t)
	ctx := context.Background()
	sub := testSubmission()

	agg, err := b.Record(ctx, sub, result(1, model.VerdictRE, model.TimeUnavailableMs, model.MinSimilarityNone), 40, 1)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if agg == nil {
		t.Fatal("expected an aggregate")
	}
	if agg.AvgCPURatio != model.AvgCPURatioNone {
		t.Fatalf("AvgCPURatio = %v, want %d", agg.AvgCPURatio, model.AvgCPURatioNone)
	}
	if agg.MinSimilarity != model.MinSimilarityNone {
		t.Fatalf("MinSimilarity = %v, want %d", agg.MinSimilarity, model.MinSimilarityNone)
	}
	if agg.Tier != model.TierAllFail {
		t.Fatalf("Tier = %d, want %d", agg.Tier, model.TierAllFail)
	}
}

func TestBarrierVerdictsOrderedByTestNumber(t *testing.T) {
	t.Parallel()

	b, _, _ := newTestBarrier(t)
	ctx := context.Background()
	sub := testSubmission()

	// Results arrive out of order; the aggregate must still be sorted.
	if _, err := b.Record(ctx, sub, result(3, model.VerdictWA, 10, 50), 10, 3); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := b.Record(ctx, sub, result(1, model.VerdictAC, 10, 100), 10, 3); err != nil {
		t.Fatalf("Record: %v", err)
	}
	agg, err := b.Record(ctx, sub, result(2, model.VerdictPE, 10, 90), 10, 3)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	want := []model.Verdict{model.VerdictAC, model.VerdictPE, model.VerdictWA}
	for i := range want {
		if agg.Verdicts[i] != want[i] {
			t.Fatalf("Verdicts = %v, want %v", agg.Verdicts, want)
		}
	}
}

func TestBarrierDeletesListsAfterFinalize(t *testing.T) {
	t.Parallel()

	b, _, mr := newTestBarrier(t)
	ctx := context.Background()
	sub := testSubmission()

	if _, err := b.Record(ctx, sub, result(1, model.VerdictAC, 10, 100), 10, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	for _, key := range []string{"cpu_time:sub-1", "similarity:sub-1", "verdict:sub-1"} {
		if mr.Exists(key) {
			t.Fatalf("key %s survived finalize", key)
		}
	}
}

// flakyCache fails RPush for one key on its first use and delegates
// everything else.
type flakyCache struct {
	cache.Cache
	failKey string
	failed  bool
}

func (f *flakyCache) RPush(ctx context.Context, key string, values ...interface{}) error {
	if key == f.failKey && !f.failed {
		f.failed = true
		return errors.New("connection reset")
	}
	return f.Cache.RPush(ctx, key, values...)
}

func TestBarrierShortListNeverFinalizes(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	flaky := &flakyCache{Cache: c, failKey: "similarity:sub-1"}
	sink := &memorySink{}
	b := New(flaky, sink, time.Hour)
	ctx := context.Background()
	sub := testSubmission()

	// The similarity append is lost; the sibling lists still get the entry.
	if _, err := b.Record(ctx, sub, result(1, model.VerdictAC, 10, 100), 10, 2); err == nil {
		t.Fatal("Record did not report the lost append")
	}
	for key, want := range map[string]int{"cpu_time:sub-1": 1, "similarity:sub-1": 0, "verdict:sub-1": 1} {
		got, err := c.LLen(ctx, key)
		if err != nil {
			t.Fatalf("LLen(%s): %v", key, err)
		}
		if got != int64(want) {
			t.Fatalf("LLen(%s) = %d, want %d", key, got, want)
		}
	}

	// The remaining test completes both its appends, but the short
	// similarity list must keep the submission from aggregating.
	agg, err := b.Record(ctx, sub, result(2, model.VerdictAC, 10, 100), 10, 2)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if agg != nil {
		t.Fatal("aggregated over a short similarity list")
	}
	if len(sink.saves) != 0 {
		t.Fatalf("sink received %d saves, want 0", len(sink.saves))
	}
}

func TestBarrierFinalizesExactlyOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	b, sink, _ := newTestBarrier(t)
	ctx := context.Background()
	sub := testSubmission()

	const tests = 8
	var aggregates int32
	var wg sync.WaitGroup
	for i := 1; i <= tests; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg, err := b.Record(ctx, sub, result(i, model.VerdictAC, 10, 100), 10, tests)
			if err != nil {
				t.Errorf("Record(%d): %v", i, err)
				return
			}
			if agg != nil {
				atomic.AddInt32(&aggregates, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&aggregates); got != 1 {
		t.Fatalf("%d callers aggregated, want exactly 1", got)
	}
	if len(sink.saves) != 1 {
		t.Fatalf("sink received %d saves, want exactly 1", len(sink.saves))
	}
	if sink.saves[0].Tier != model.TierAllPass {
		t.Fatalf("Tier = %d, want %d", sink.saves[0].Tier, model.TierAllPass)
	}
}
