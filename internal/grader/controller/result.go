package controller

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"hwjudge/internal/grader/model"
	"hwjudge/internal/grader/repository"
	appErr "hwjudge/pkg/errors"
)

// ResultController serves read-only queries against persisted grading
// records. It never mutates pipeline state.
type ResultController struct {
	results repository.ExecutionResultRepository
	aggs    repository.AggregateRepository
}

// NewResultController creates the result browsing controller.
func NewResultController(results repository.ExecutionResultRepository, aggs repository.AggregateRepository) *ResultController {
	return &ResultController{results: results, aggs: aggs}
}

// RegisterRoutes mounts the API on the given engine.
func (rc *ResultController) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	v1.GET("/results/:id/verdicts", rc.GetVerdicts)
	v1.GET("/results/:id/aggregate", rc.GetAggregate)
	v1.GET("/results/:id/tests/:test/diff/:item", rc.GetDiff)
}

// TestVerdict is one row of the verdict listing.
type TestVerdict struct {
	TestNum    int           `json:"test_num"`
	Verdict    model.Verdict `json:"verdict"`
	CPUTimeMs  int64         `json:"cpu_time_ms"`
	RealTimeMs int64         `json:"real_time_ms"`
	Similarity float64       `json:"similarity"`
}

// GetVerdicts lists the per-test verdicts of a submission in test order.
func (rc *ResultController) GetVerdicts(c *gin.Context) {
	results, err := rc.results.ListBySubmission(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(results) == 0 {
		respondError(c, appErr.New(appErr.ResultNotFound))
		return
	}
	verdicts := make([]TestVerdict, len(results))
	for i, res := range results {
		verdicts[i] = TestVerdict{
			TestNum:    res.TestNum,
			Verdict:    res.Verdict,
			CPUTimeMs:  res.CPUTimeMs,
			RealTimeMs: res.RealTimeMs,
			Similarity: res.Similarity,
		}
	}
	respondOK(c, verdicts)
}

// GetAggregate returns the submission's aggregate. While grading is still
// in flight the aggregate row does not exist yet and the response is a 404
// with the pending code.
func (rc *ResultController) GetAggregate(c *gin.Context) {
	agg, err := rc.aggs.GetBySubmission(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, agg)
}

// GetDiff returns the edit script of one output item of one test.
func (rc *ResultController) GetDiff(c *gin.Context) {
	testNum, err := strconv.Atoi(c.Param("test"))
	if err != nil {
		respondError(c, appErr.Newf(appErr.InvalidParams, "bad test number %q", c.Param("test")))
		return
	}
	res, err := rc.results.GetByTest(requestContext(c), c.Param("id"), testNum)
	if err != nil {
		respondError(c, err)
		return
	}
	item := c.Param("item")
	for _, d := range res.Diffs {
		if d.Item == item {
			respondOK(c, d)
			return
		}
	}
	respondError(c, appErr.Newf(appErr.ResultNotFound, "no diff recorded for item %q", item))
}

func requestContext(c *gin.Context) context.Context {
	return c.Request.Context()
}
