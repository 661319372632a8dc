package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/timmy/sfbulk/internal/bulk"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/logger"
	"github.com/timmy/sfbulk/internal/repository"
	"golang.org/x/sync/errgroup"
)

// JobLedger records job snapshots. *repository.JobRepository implements it.
type JobLedger interface {
	Save(ctx context.Context, rec *domain.JobRecord) error
	GetByID(ctx context.Context, id string) (*domain.JobRecord, error)
	List(ctx context.Context, filter repository.JobFilter, limit, offset int) ([]domain.JobRecord, error)
	Count(ctx context.Context, filter repository.JobFilter) (int64, error)
}

// ResultStore keeps raw result payloads. *storage.ResultArchive implements it.
type ResultStore interface {
	Put(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory, payload string) (string, error)
	Get(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory) (string, error)
	Has(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory) (bool, error)
}

// RunnerConfig holds runner settings.
type RunnerConfig struct {
	Interval time.Duration // polling interval, the client default when zero
	Workers  int           // parallel jobs in RunIngestBatch
}

// JobRunner drives complete bulk flows and records what it observes.
// Ledger and archive are optional.
type JobRunner struct {
	client   *bulk.Client
	ledger   JobLedger
	archive  ResultStore
	interval time.Duration
	workers  int
}

// NewJobRunner creates a new JobRunner. Pass nil for ledger or archive to
// disable them.
func NewJobRunner(client *bulk.Client, ledger JobLedger, archive ResultStore, cfg *RunnerConfig) *JobRunner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &JobRunner{
		client:   client,
		ledger:   ledger,
		archive:  archive,
		interval: cfg.Interval,
		workers:  workers,
	}
}

// QueryRequest describes a query run.
type QueryRequest struct {
	SOQL       string              `json:"soql" binding:"required"`
	IncludeAll bool                `json:"include_all"`
	Format     domain.ResultFormat `json:"format"`
}

// QueryOutcome is the result of a query run.
type QueryOutcome struct {
	Job         domain.JobDescriptor `json:"job"`
	Status      domain.JobStatus     `json:"status"`
	Results     domain.ResultSet     `json:"results,omitempty"`
	ArchiveKeys []string             `json:"archive_keys,omitempty"`
}

// IngestRequest describes an ingest run.
type IngestRequest struct {
	Object          string              `json:"object" binding:"required"`
	Operation       domain.Operation    `json:"operation" binding:"required"`
	ExternalIDField string              `json:"external_id_field"`
	CSV             string              `json:"csv" binding:"required"`
	Format          domain.ResultFormat `json:"format"`
}

// IngestOutcome is the result of an ingest run. Job level failures show up
// in Status and the result sets, not as an error.
type IngestOutcome struct {
	Job         domain.JobDescriptor `json:"job"`
	Status      domain.JobStatus     `json:"status"`
	Successful  domain.ResultSet     `json:"successful,omitempty"`
	Failed      domain.ResultSet     `json:"failed,omitempty"`
	Unprocessed domain.ResultSet     `json:"unprocessed,omitempty"`
	ArchiveKeys []string             `json:"archive_keys,omitempty"`
	Err         error                `json:"-"`
}

// Succeeded reports whether the job completed without failed records.
func (o *IngestOutcome) Succeeded() bool {
	return o.Err == nil && o.Status.State() == domain.StateJobComplete && o.Status.NumberRecordsFailed() == 0
}

// RunQuery creates a query job, waits for it and fetches its results.
func (r *JobRunner) RunQuery(ctx context.Context, req *QueryRequest) (*QueryOutcome, error) {
	format := formatOrDefault(req.Format)
	if err := format.Validate(); err != nil {
		return nil, err
	}

	job, err := r.client.Query.Create(ctx, req.SOQL, req.IncludeAll)
	if err != nil {
		return nil, fmt.Errorf("create query job: %w", err)
	}
	ctx = logger.SetJobID(ctx, job.ID())
	r.record(ctx, job.Descriptor(), job.Info(), nil)

	status, err := job.Wait(ctx, r.interval)
	if err != nil {
		return nil, fmt.Errorf("wait for query job %s: %w", job.ID(), err)
	}

	out := &QueryOutcome{Job: job.Descriptor(), Status: status}
	if status.State() == domain.StateJobComplete {
		set, key, err := r.fetch(ctx, job.Descriptor(), domain.CategoryResults, format)
		if err != nil {
			return nil, err
		}
		out.Results = set
		out.ArchiveKeys = appendKey(out.ArchiveKeys, key)
	} else {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldState: status.State(),
			"error_message":   status.ErrorMessage(),
		}).Warn("Query job did not complete")
	}

	r.record(ctx, out.Job, status, out.ArchiveKeys)
	return out, nil
}

// RunIngest creates an ingest job, uploads req.CSV, waits for processing and
// fetches the result categories that apply to the final state.
func (r *JobRunner) RunIngest(ctx context.Context, req *IngestRequest) (*IngestOutcome, error) {
	format := formatOrDefault(req.Format)
	if err := format.Validate(); err != nil {
		return nil, err
	}

	job, err := r.client.Ingest.Create(ctx, req.Object, req.Operation, req.ExternalIDField)
	if err != nil {
		return nil, fmt.Errorf("create ingest job: %w", err)
	}
	ctx = logger.SetJobID(ctx, job.ID())
	r.record(ctx, job.Descriptor(), job.Info(), nil)

	if err := job.UploadData(ctx, req.CSV); err != nil {
		return nil, fmt.Errorf("upload data for job %s: %w", job.ID(), err)
	}
	if err := job.CompleteUpload(ctx); err != nil {
		return nil, fmt.Errorf("complete upload for job %s: %w", job.ID(), err)
	}

	status, err := job.Wait(ctx, r.interval)
	if err != nil {
		return nil, fmt.Errorf("wait for ingest job %s: %w", job.ID(), err)
	}

	out := &IngestOutcome{Job: job.Descriptor(), Status: status}

	categories := []domain.ResultCategory{domain.CategorySuccessfulResults, domain.CategoryFailedResults}
	if !job.IsSuccessful() {
		categories = append(categories, domain.CategoryUnprocessedRecords)
	}
	for _, category := range categories {
		set, key, err := r.fetch(ctx, out.Job, category, format)
		if err != nil {
			return nil, err
		}
		out.ArchiveKeys = appendKey(out.ArchiveKeys, key)
		switch category {
		case domain.CategorySuccessfulResults:
			out.Successful = set
		case domain.CategoryFailedResults:
			out.Failed = set
		case domain.CategoryUnprocessedRecords:
			out.Unprocessed = set
		}
	}

	entry := logger.With(logger.Fields{
		logger.FieldObject:    out.Job.Object,
		logger.FieldOperation: out.Job.Operation,
		"records_processed":   status.NumberRecordsProcessed(),
		"records_failed":      status.NumberRecordsFailed(),
	}).WithState(string(status.State()))
	if job.HasFailedRecords() || !job.IsSuccessful() {
		entry.Warn(ctx, "Ingest job %s finished with failures", job.ID())
	} else {
		entry.Info(ctx, "Ingest job %s finished", job.ID())
	}

	r.record(ctx, out.Job, status, out.ArchiveKeys)
	return out, nil
}

// RunIngestBatch runs several ingest requests in parallel, at most the
// configured number of workers at a time. Every request gets an outcome; the
// returned error joins the per-request errors.
func (r *JobRunner) RunIngestBatch(ctx context.Context, reqs []*IngestRequest) ([]*IngestOutcome, error) {
	outcomes := make([]*IngestOutcome, len(reqs))
	start := time.Now()
	var failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, req := range reqs {
		g.Go(func() error {
			out, err := r.RunIngest(gctx, req)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				out = &IngestOutcome{
					Job: domain.JobDescriptor{Kind: domain.JobKindIngest, Operation: req.Operation, Object: req.Object},
					Err: err,
				}
			}
			outcomes[i] = out
			return nil // one failed job must not cancel the others
		})
	}
	_ = g.Wait()

	logger.With(logger.Fields{
		logger.FieldCount: len(reqs),
		"failed":          failed,
		"workers":         r.workers,
	}).WithDuration(time.Since(start)).Info(ctx, "Ingest batch finished")

	var errs []error
	for i, out := range outcomes {
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("request %d (%s %s): %w", i, reqs[i].Operation, reqs[i].Object, out.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

// Track attaches to an existing job, refreshes its status and records it.
func (r *JobRunner) Track(ctx context.Context, kind domain.JobKind, id string) (domain.JobDescriptor, domain.JobStatus, error) {
	var (
		desc   domain.JobDescriptor
		status domain.JobStatus
	)

	switch kind {
	case domain.JobKindQuery:
		job, err := r.client.Query.Attach(ctx, id)
		if err != nil {
			return desc, nil, err
		}
		desc, status = job.Descriptor(), job.Info()
	case domain.JobKindIngest:
		job, err := r.client.Ingest.Attach(ctx, id)
		if err != nil {
			return desc, nil, err
		}
		desc, status = job.Descriptor(), job.Info()
	default:
		return desc, nil, domain.InvalidArgumentf("unsupported job kind %q", string(kind))
	}

	r.record(logger.SetJobID(ctx, id), desc, status, nil)
	return desc, status, nil
}

// Results returns one result category of a job. Archived payloads are served
// from the archive; otherwise the results are fetched and, once the job is
// terminal, archived.
func (r *JobRunner) Results(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory, format domain.ResultFormat) (domain.ResultSet, error) {
	format = formatOrDefault(format)
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if kind, ok := category.Kind(); !ok || kind != desc.Kind {
		return nil, domain.InvalidArgumentf("result category %q is not available for %s jobs", string(category), desc.Kind)
	}

	if r.archive != nil {
		if ok, err := r.archive.Has(ctx, desc, category); err == nil && ok {
			payload, err := r.archive.Get(ctx, desc, category)
			if err == nil {
				return bulk.DecodeResults(payload, format)
			}
			logger.FromContext(ctx).WithError(err).Warn("Failed to read archived results, fetching again")
		}
	}

	status, err := r.client.GetStatus(ctx, desc)
	if err != nil {
		return nil, err
	}
	if !status.State().IsTerminal() {
		return r.client.FetchResults(ctx, desc, category, format)
	}

	set, key, err := r.fetch(ctx, desc, category, format)
	if err != nil {
		return nil, err
	}
	if key != "" && r.ledger != nil {
		if rec, err := r.ledger.GetByID(ctx, desc.ID); err == nil {
			r.record(ctx, desc, status, appendKey(splitKeys(rec.ResultKeys), key))
		}
	}
	return set, nil
}

// fetch downloads one category, archives the raw payload and decodes it.
// The returned key is empty when no archive is configured.
func (r *JobRunner) fetch(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory, format domain.ResultFormat) (domain.ResultSet, string, error) {
	raw, err := r.client.FetchResults(ctx, desc, category, domain.FormatRaw)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s for job %s: %w", category, desc.ID, err)
	}
	payload := string(raw.(domain.Raw))

	var key string
	if r.archive != nil {
		key, err = r.archive.Put(ctx, desc, category, payload)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("category", category).Warn("Failed to archive job results")
			key = ""
		}
	}

	set, err := bulk.DecodeResults(payload, format)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s for job %s: %w", category, desc.ID, err)
	}
	return set, key, nil
}

// record saves a ledger entry. Ledger failures are logged, never returned.
func (r *JobRunner) record(ctx context.Context, desc domain.JobDescriptor, status domain.JobStatus, keys []string) {
	if r.ledger == nil {
		return
	}
	rec := domain.NewJobRecord(desc, status)
	rec.ResultKeys = strings.Join(keys, ",")
	if err := r.ledger.Save(ctx, rec); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to record job snapshot")
	}
}

func formatOrDefault(f domain.ResultFormat) domain.ResultFormat {
	if f == "" {
		return domain.FormatRecords
	}
	return f
}

func appendKey(keys []string, key string) []string {
	if key == "" {
		return keys
	}
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
