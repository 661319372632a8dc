package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/repository"
	"github.com/timmy/sfbulk/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// JobHandler handles bulk job endpoints.
type JobHandler struct {
	runner *service.JobRunner
	ledger service.JobLedger
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - runner: job runner used to drive and inspect jobs.
//   - ledger: job ledger, nil when persistence is disabled.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(runner *service.JobRunner, ledger service.JobLedger) *JobHandler {
	return &JobHandler{runner: runner, ledger: ledger}
}

// RunQuery handles POST /api/v1/jobs/query.
// The optional timeout query parameter (seconds) bounds the whole run.
func (h *JobHandler) RunQuery(c *gin.Context) {
	var req service.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx, cancel, err := runContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cancel()

	out, err := h.runner.RunQuery(ctx, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":          out.Job,
		"status":       out.Status,
		"results":      resultBody(out.Results),
		"archive_keys": out.ArchiveKeys,
	})
}

// RunIngest handles POST /api/v1/jobs/ingest.
func (h *JobHandler) RunIngest(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx, cancel, err := runContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cancel()

	out, err := h.runner.RunIngest(ctx, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":          out.Job,
		"status":       out.Status,
		"succeeded":    out.Succeeded(),
		"successful":   resultBody(out.Successful),
		"failed":       resultBody(out.Failed),
		"unprocessed":  resultBody(out.Unprocessed),
		"archive_keys": out.ArchiveKeys,
	})
}

// ListJobs handles GET /api/v1/jobs.
// Query parameters: kind, state, object, active, limit, offset.
func (h *JobHandler) ListJobs(c *gin.Context) {
	if h.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job ledger is disabled"})
		return
	}

	filter := repository.JobFilter{
		State:  domain.JobState(c.Query("state")),
		Object: c.Query("object"),
	}
	if kind := c.Query("kind"); kind != "" {
		k, err := domain.ParseJobKind(kind)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Kind = k
	}
	filter.Active, _ = strconv.ParseBool(c.DefaultQuery("active", "false"))

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	jobs, err := h.ledger.List(ctx, filter, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.ledger.Count(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetJob handles GET /api/v1/jobs/:kind/:id. It refreshes the job from the
// server and records the snapshot.
func (h *JobHandler) GetJob(c *gin.Context) {
	kind, err := domain.ParseJobKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}

	desc, status, err := h.runner.Track(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":      desc,
		"status":   status,
		"terminal": status.State().IsTerminal(),
	})
}

// GetResults handles GET /api/v1/jobs/:kind/:id/results/:category.
// format=raw streams the CSV unchanged; records and rows are returned as JSON.
func (h *JobHandler) GetResults(c *gin.Context) {
	kind, err := domain.ParseJobKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	category, err := domain.ParseResultCategory(c.Param("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	format := domain.ResultFormat(c.DefaultQuery("format", string(domain.FormatRecords)))

	desc := domain.JobDescriptor{ID: c.Param("id"), Kind: kind}
	set, err := h.runner.Results(c.Request.Context(), desc, category, format)
	if err != nil {
		respondError(c, err)
		return
	}

	if raw, ok := set.(domain.Raw); ok {
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(raw))
		return
	}
	c.JSON(http.StatusOK, resultBody(set))
}

func resultBody(set domain.ResultSet) gin.H {
	if set == nil {
		return nil
	}
	return gin.H{
		"format": set.Format(),
		"count":  set.Len(),
		"data":   set,
	}
}

// runContext derives the run context, bounded by the timeout query parameter.
func runContext(c *gin.Context) (context.Context, context.CancelFunc, error) {
	ctx := c.Request.Context()
	raw := c.Query("timeout")
	if raw == "" {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}

	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return nil, nil, domain.InvalidArgumentf("timeout must be a positive number of seconds, got %q", raw)
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second)
	return ctx, cancel, nil
}
