package bulk

import (
	"context"
	"time"

	"github.com/timmy/sfbulk/internal/domain"
)

// jobHandle binds a descriptor to the shared client and caches the last
// known status. A handle must not be used from several goroutines at once.
type jobHandle struct {
	client *Client
	desc   domain.JobDescriptor
	info   domain.JobStatus
}

// ID returns the server assigned job id.
func (h *jobHandle) ID() string {
	return h.desc.ID
}

// Descriptor returns the job descriptor.
func (h *jobHandle) Descriptor() domain.JobDescriptor {
	return h.desc
}

// Info returns a copy of the last known status. Use Refresh to fetch a new one.
func (h *jobHandle) Info() domain.JobStatus {
	return h.info.Clone()
}

// State returns the cached job state.
func (h *jobHandle) State() domain.JobState {
	return h.info.State()
}

// Refresh fetches the latest status and replaces the cache.
func (h *jobHandle) Refresh(ctx context.Context) (domain.JobStatus, error) {
	status, err := h.client.GetStatus(ctx, h.desc)
	if err != nil {
		return nil, err
	}
	h.info = status
	return status.Clone(), nil
}

// Wait blocks until the job reaches a terminal state and caches the final
// status. A zero interval uses the client's default.
func (h *jobHandle) Wait(ctx context.Context, interval time.Duration) (domain.JobStatus, error) {
	status, err := h.client.Wait(ctx, h.desc, interval)
	if err != nil {
		return nil, err
	}
	h.info = status
	return status.Clone(), nil
}

// QueryJob manages a single query job.
type QueryJob struct {
	jobHandle
}

// Results fetches the query results in the requested format.
func (j *QueryJob) Results(ctx context.Context, format domain.ResultFormat) (domain.ResultSet, error) {
	return j.client.FetchResults(ctx, j.desc, domain.CategoryResults, format)
}

// IngestJob manages a single ingest job: upload, completion, waiting and
// result retrieval. The upload → CompleteUpload → Wait order is up to the caller.
type IngestJob struct {
	jobHandle
}

// UploadData uploads CSV data to the job.
func (j *IngestJob) UploadData(ctx context.Context, csvData string) error {
	return j.client.UploadBatch(ctx, j.desc, []byte(csvData))
}

// CompleteUpload signals that all batches have been uploaded.
func (j *IngestJob) CompleteUpload(ctx context.Context) error {
	return j.client.CompleteUpload(ctx, j.desc)
}

// IsSuccessful reports whether the cached state is JobComplete.
func (j *IngestJob) IsSuccessful() bool {
	return j.info.State() == domain.StateJobComplete
}

// IsFailed reports whether the cached state is Failed.
func (j *IngestJob) IsFailed() bool {
	return j.info.State() == domain.StateFailed
}

// IsAborted reports whether the cached state is Aborted.
func (j *IngestJob) IsAborted() bool {
	return j.info.State() == domain.StateAborted
}

// HasFailedRecords reports whether the cached failed record count is positive.
func (j *IngestJob) HasFailedRecords() bool {
	return j.info.NumberRecordsFailed() > 0
}

// SuccessfulResults fetches the records that were processed successfully.
func (j *IngestJob) SuccessfulResults(ctx context.Context, format domain.ResultFormat) (domain.ResultSet, error) {
	return j.client.FetchResults(ctx, j.desc, domain.CategorySuccessfulResults, format)
}

// FailedResults fetches the failed records together with the server's error messages.
func (j *IngestJob) FailedResults(ctx context.Context, format domain.ResultFormat) (domain.ResultSet, error) {
	return j.client.FetchResults(ctx, j.desc, domain.CategoryFailedResults, format)
}

// UnprocessedRecords fetches the records that were never processed, typically
// because the job was aborted or failed.
func (j *IngestJob) UnprocessedRecords(ctx context.Context, format domain.ResultFormat) (domain.ResultSet, error) {
	return j.client.FetchResults(ctx, j.desc, domain.CategoryUnprocessedRecords, format)
}

// QueryJobs creates and attaches query job handles.
type QueryJobs struct {
	client *Client
}

// Create starts a query job; includeAll selects the queryAll operation.
func (q *QueryJobs) Create(ctx context.Context, soql string, includeAll bool) (*QueryJob, error) {
	desc, status, err := q.client.CreateQueryJob(ctx, soql, includeAll)
	if err != nil {
		return nil, err
	}
	return &QueryJob{jobHandle{client: q.client, desc: desc, info: status}}, nil
}

// Attach returns a handle for an existing query job.
func (q *QueryJobs) Attach(ctx context.Context, id string) (*QueryJob, error) {
	desc := domain.JobDescriptor{ID: id, Kind: domain.JobKindQuery}
	status, err := q.client.GetStatus(ctx, desc)
	if err != nil {
		return nil, err
	}
	desc.Operation = status.Operation()
	return &QueryJob{jobHandle{client: q.client, desc: desc, info: status}}, nil
}

// IngestJobs creates and attaches ingest job handles.
type IngestJobs struct {
	client *Client
}

// Create starts an ingest job. externalIDField is only used by upsert.
func (g *IngestJobs) Create(ctx context.Context, object string, op domain.Operation, externalIDField string) (*IngestJob, error) {
	desc, status, err := g.client.CreateIngestJob(ctx, object, op, externalIDField)
	if err != nil {
		return nil, err
	}
	return &IngestJob{jobHandle{client: g.client, desc: desc, info: status}}, nil
}

// CreateInsert starts an insert job.
func (g *IngestJobs) CreateInsert(ctx context.Context, object string) (*IngestJob, error) {
	return g.Create(ctx, object, domain.OperationInsert, "")
}

// CreateUpdate starts an update job.
func (g *IngestJobs) CreateUpdate(ctx context.Context, object string) (*IngestJob, error) {
	return g.Create(ctx, object, domain.OperationUpdate, "")
}

// CreateUpsert starts an upsert job keyed by externalIDField.
func (g *IngestJobs) CreateUpsert(ctx context.Context, object, externalIDField string) (*IngestJob, error) {
	return g.Create(ctx, object, domain.OperationUpsert, externalIDField)
}

// CreateDelete starts a delete job (records go to the recycle bin).
func (g *IngestJobs) CreateDelete(ctx context.Context, object string) (*IngestJob, error) {
	return g.Create(ctx, object, domain.OperationDelete, "")
}

// CreateHardDelete starts a hard delete job (records are removed permanently).
func (g *IngestJobs) CreateHardDelete(ctx context.Context, object string) (*IngestJob, error) {
	return g.Create(ctx, object, domain.OperationHardDelete, "")
}

// Attach returns a handle for an existing ingest job.
func (g *IngestJobs) Attach(ctx context.Context, id string) (*IngestJob, error) {
	desc := domain.JobDescriptor{ID: id, Kind: domain.JobKindIngest}
	status, err := g.client.GetStatus(ctx, desc)
	if err != nil {
		return nil, err
	}
	desc.Operation = status.Operation()
	desc.Object = status.Object()
	desc.ExternalIDField = status.ExternalIDField()
	return &IngestJob{jobHandle{client: g.client, desc: desc, info: status}}, nil
}
