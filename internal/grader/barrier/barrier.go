// Package barrier collects per-test results for a submission in Redis and
// fires exactly one aggregation when the last result lands.
package barrier

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hwjudge/internal/common/cache"
	"hwjudge/internal/grader/model"
	appErr "hwjudge/pkg/errors"
	"hwjudge/pkg/utils/logger"
)

const (
	cpuTimePrefix    = "cpu_time:"
	similarityPrefix = "similarity:"
	verdictPrefix    = "verdict:"
	lockPrefix       = "aggregate_lock:"
)

// Sink persists the finished aggregate. Implemented by the aggregate
// repository.
type Sink interface {
	SaveAggregate(ctx context.Context, agg *model.AggregateResult) error
}

// Barrier tracks three parallel Redis lists per submission. Every result
// appends one entry to each; the append that brings the timing list to the
// expected count takes a distributed lock and finalizes. The lists carry a
// safety-net TTL so a crashed submission cannot leak keys forever.
type Barrier struct {
	cache   cache.Cache
	sink    Sink
	listTTL time.Duration
	lockTTL time.Duration
}

// New creates a barrier. listTTL <= 0 defaults to an hour.
func New(c cache.Cache, sink Sink, listTTL time.Duration) *Barrier {
	if listTTL <= 0 {
		listTTL = time.Hour
	}
	return &Barrier{
		cache:   c,
		sink:    sink,
		listTTL: listTTL,
		lockTTL: 30 * time.Second,
	}
}

// Record appends one execution result (synthetic skips included) and, when
// it is the last one expected, aggregates, persists and clears the lists.
// The returned aggregate is non-nil only for the call that finalized.
func (b *Barrier) Record(ctx context.Context, sub *model.Submission, res *model.ExecutionResult, refCPUMs int64, expected int) (*model.AggregateResult, error) {
	id := sub.ID
	cpuKey := cpuTimePrefix + id
	simKey := similarityPrefix + id
	verKey := verdictPrefix + id

	// Push all three even when one fails: a transient error then leaves at
	// most one list short, the all-full check below keeps the skewed
	// submission from finalizing, and the TTL reclaims its keys.
	entries := []struct{ key, value string }{
		{cpuKey, fmt.Sprintf("%d|%d|%d", res.TestNum, res.CPUTimeMs, refCPUMs)},
		{simKey, fmt.Sprintf("%d|%g", res.TestNum, res.Similarity)},
		{verKey, fmt.Sprintf("%d|%s", res.TestNum, res.Verdict)},
	}
	var pushErr error
	for _, e := range entries {
		if err := b.cache.RPush(ctx, e.key, e.value); err != nil && pushErr == nil {
			pushErr = appErr.Wrap(err, appErr.CacheError)
		}
	}
	for _, key := range []string{cpuKey, simKey, verKey} {
		if err := b.cache.Expire(ctx, key, b.listTTL); err != nil {
			logger.Warn(ctx, "barrier: set list ttl failed", zap.String("key", key), zap.Error(err))
		}
	}
	if pushErr != nil {
		return nil, pushErr
	}

	// All three lists must be full. Checking only one could start the
	// finalizer between another recorder's first and last push.
	for _, key := range []string{cpuKey, simKey, verKey} {
		n, err := b.cache.LLen(ctx, key)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CacheError)
		}
		if n < int64(expected) {
			return nil, nil
		}
	}
	return b.finalize(ctx, sub, cpuKey, simKey, verKey)
}

// finalize runs under the per-submission lock. A second caller that lost
// the race either fails TryLock or finds the lists already deleted.
func (b *Barrier) finalize(ctx context.Context, sub *model.Submission, cpuKey, simKey, verKey string) (*model.AggregateResult, error) {
	lockKey := lockPrefix + sub.ID
	ok, err := b.cache.TryLock(ctx, lockKey, b.lockTTL)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CacheError)
	}
	if !ok {
		return nil, nil
	}
	defer func() {
		if err := b.cache.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			logger.Warn(ctx, "barrier: unlock failed", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	n, err := b.cache.LLen(ctx, cpuKey)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CacheError)
	}
	if n == 0 {
		// Another finalizer already consumed the lists.
		return nil, nil
	}

	cpuEntries, err := b.cache.LRange(ctx, cpuKey, 0, -1)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CacheError)
	}
	simEntries, err := b.cache.LRange(ctx, simKey, 0, -1)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CacheError)
	}
	verEntries, err := b.cache.LRange(ctx, verKey, 0, -1)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CacheError)
	}

	agg := aggregate(sub, cpuEntries, simEntries, verEntries)
	if err := b.sink.SaveAggregate(ctx, agg); err != nil {
		return nil, err
	}
	if err := b.cache.Del(ctx, cpuKey, simKey, verKey); err != nil {
		logger.Warn(ctx, "barrier: delete lists failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	return agg, nil
}

// aggregate folds the three entry lists into one AggregateResult.
func aggregate(sub *model.Submission, cpuEntries, simEntries, verEntries []string) *model.AggregateResult {
	var sumStudent, sumRef int64
	for _, e := range cpuEntries {
		_, fields, ok := splitEntry(e, 2)
		if !ok {
			continue
		}
		student, err1 := strconv.ParseInt(fields[0], 10, 64)
		ref, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if student > 0 {
			sumStudent += student
			sumRef += ref
		}
	}
	avg := float64(model.AvgCPURatioNone)
	if sumRef > 0 {
		avg = float64(sumStudent) / float64(sumRef)
	}

	minSim := float64(model.MinSimilarityNone)
	for _, e := range simEntries {
		_, fields, ok := splitEntry(e, 1)
		if !ok {
			continue
		}
		s, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || s < 0 {
			continue
		}
		if minSim < 0 || s < minSim {
			minSim = s
		}
	}

	type numbered struct {
		test    int
		verdict model.Verdict
	}
	var ordered []numbered
	for _, e := range verEntries {
		test, fields, ok := splitEntry(e, 1)
		if !ok {
			continue
		}
		ordered = append(ordered, numbered{test: test, verdict: model.Verdict(fields[0])})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].test < ordered[j].test })
	verdicts := make([]model.Verdict, len(ordered))
	for i, v := range ordered {
		verdicts[i] = v.verdict
	}

	return &model.AggregateResult{
		SubmissionID:  sub.ID,
		Homework:      sub.Homework,
		Type:          sub.Type,
		UploadID:      sub.UploadID,
		AvgCPURatio:   avg,
		MinSimilarity: minSim,
		Verdicts:      verdicts,
		Tier:          tierOf(verdicts),
		CreatedAt:     time.Now(),
	}
}

// splitEntry parses "<test>|f1|f2..." and checks the field count.
func splitEntry(entry string, fields int) (int, []string, bool) {
	parts := strings.Split(entry, "|")
	if len(parts) != fields+1 {
		return 0, nil, false
	}
	test, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, false
	}
	return test, parts[1:], true
}

func tierOf(verdicts []model.Verdict) int {
	accepted := 0
	for _, v := range verdicts {
		if v == model.VerdictAC {
			accepted++
		}
	}
	switch {
	case len(verdicts) > 0 && accepted == len(verdicts):
		return model.TierAllPass
	case accepted > 0:
		return model.TierMixed
	default:
		return model.TierAllFail
	}
}
