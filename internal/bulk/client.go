package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/logger"
)

// Client performs every network facing bulk job operation. It keeps no
// per-job state and is safe for concurrent use.
type Client struct {
	transport Transport
	interval  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error

	// Query groups the query job operations.
	Query *QueryJobs
	// Ingest groups the ingest job operations.
	Ingest *IngestJobs
}

// Config holds settings for a resty-backed Client.
type Config struct {
	BaseURL     string        // e.g. https://acme.my.salesforce.com/services/data/v64.0/jobs
	AccessToken string
	Interval    time.Duration // default polling interval, DefaultInterval when zero
	Timeout     time.Duration // per-request deadline, DefaultTimeout when zero

	RequestsPerSecond float64 // client-side throttle, off when zero
	Burst             int
}

// Option customizes a Client.
type Option func(*Client)

// WithInterval sets the default polling interval used by Wait.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithSleeper replaces the function Wait suspends with between polls.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New creates a Client talking HTTP to cfg.BaseURL.
func New(cfg *Config, opts ...Option) *Client {
	transport := NewRestyTransport(&TransportConfig{
		BaseURL:     cfg.BaseURL,
		AccessToken: cfg.AccessToken,
		Timeout:     cfg.Timeout,

		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	return NewClient(transport, append([]Option{WithInterval(cfg.Interval)}, opts...)...)
}

// NewClient creates a Client on top of an arbitrary Transport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		interval:  DefaultInterval,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Query = &QueryJobs{client: c}
	c.Ingest = &IngestJobs{client: c}
	return c
}

// Interval returns the default polling interval.
func (c *Client) Interval() time.Duration {
	return c.interval
}

type queryJobRequest struct {
	Operation domain.Operation `json:"operation"`
	Query     string           `json:"query"`
}

type ingestJobRequest struct {
	Object              string           `json:"object"`
	Operation           domain.Operation `json:"operation"`
	ExternalIDFieldName string           `json:"externalIdFieldName,omitempty"`
}

type stateChangeRequest struct {
	State domain.JobState `json:"state"`
}

// CreateQueryJob creates a query job; includeAll selects queryAll so deleted
// and archived records are returned as well.
func (c *Client) CreateQueryJob(ctx context.Context, soql string, includeAll bool) (domain.JobDescriptor, domain.JobStatus, error) {
	op := domain.OperationQuery
	if includeAll {
		op = domain.OperationQueryAll
	}

	status, err := c.create(ctx, "create query job", string(domain.JobKindQuery), queryJobRequest{
		Operation: op,
		Query:     soql,
	})
	if err != nil {
		return domain.JobDescriptor{}, nil, err
	}

	desc := domain.JobDescriptor{
		ID:        status.ID(),
		Kind:      domain.JobKindQuery,
		Operation: op,
	}
	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:     desc.ID,
		logger.FieldJobKind:   desc.Kind,
		logger.FieldOperation: desc.Operation,
		logger.FieldState:     status.State(),
	}).Info("Bulk query job created")
	return desc, status, nil
}

// CreateIngestJob creates an ingest job for object. externalIDField is
// required for upsert and is checked before any request is sent.
func (c *Client) CreateIngestJob(ctx context.Context, object string, op domain.Operation, externalIDField string) (domain.JobDescriptor, domain.JobStatus, error) {
	if strings.TrimSpace(object) == "" {
		return domain.JobDescriptor{}, nil, domain.InvalidArgumentf("object name is required")
	}
	if !op.IsIngest() {
		return domain.JobDescriptor{}, nil, domain.InvalidArgumentf("unsupported ingest operation %q", string(op))
	}
	if op == domain.OperationUpsert && strings.TrimSpace(externalIDField) == "" {
		return domain.JobDescriptor{}, nil, domain.InvalidArgumentf("external id field is required for the upsert operation")
	}

	status, err := c.create(ctx, "create ingest job", string(domain.JobKindIngest), ingestJobRequest{
		Object:              object,
		Operation:           op,
		ExternalIDFieldName: externalIDField,
	})
	if err != nil {
		return domain.JobDescriptor{}, nil, err
	}

	desc := domain.JobDescriptor{
		ID:              status.ID(),
		Kind:            domain.JobKindIngest,
		Operation:       op,
		Object:          object,
		ExternalIDField: externalIDField,
	}
	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:     desc.ID,
		logger.FieldJobKind:   desc.Kind,
		logger.FieldOperation: desc.Operation,
		logger.FieldObject:    desc.Object,
		logger.FieldState:     status.State(),
	}).Info("Bulk ingest job created")
	return desc, status, nil
}

func (c *Client) create(ctx context.Context, op, path string, body any) (domain.JobStatus, error) {
	resp, err := c.transport.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return nil, err
	}

	status, err := decodeStatus(op, resp.Body)
	if err != nil {
		return nil, err
	}
	if status.ID() == "" {
		return nil, &domain.ProtocolError{Op: op, Field: domain.StatusKeyID}
	}
	return status, nil
}

// GetStatus fetches a fresh snapshot of the job.
func (c *Client) GetStatus(ctx context.Context, desc domain.JobDescriptor) (domain.JobStatus, error) {
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}

	resp, err := c.transport.Do(ctx, &Request{Method: http.MethodGet, Path: jobPath(desc)})
	if err != nil {
		return nil, err
	}
	return decodeStatus("get job status", resp.Body)
}

// Wait polls the job until it reaches a terminal state, suspending for
// interval (the client default when zero) between polls. There is no retry
// limit; ctx is the only bound. Any status error ends the wait.
func (c *Client) Wait(ctx context.Context, desc domain.JobDescriptor, interval time.Duration) (domain.JobStatus, error) {
	if interval <= 0 {
		interval = c.interval
	}
	ctx = logger.SetJobID(ctx, desc.ID)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		status, err := c.GetStatus(ctx, desc)
		if err != nil {
			return nil, err
		}
		if !status.HasState() {
			return nil, &domain.ProtocolError{Op: "wait", Field: domain.StatusKeyState}
		}

		state := status.State()
		if state.IsTerminal() {
			logger.With(logger.Fields{logger.FieldAttempts: attempt}).
				WithDuration(time.Since(start)).
				WithState(string(state)).
				Info(ctx, "Bulk job %s finished", desc.ID)
			return status, nil
		}

		logger.CtxDebug(ctx, "Bulk job %s is %s, polling again in %s", desc.ID, state, interval)
		if err := c.sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("wait for bulk job %s: %w", desc.ID, err)
		}
	}
}

// UploadBatch uploads one CSV batch to an open ingest job.
func (c *Client) UploadBatch(ctx context.Context, desc domain.JobDescriptor, csvData []byte) error {
	if err := validateIngest(desc, "upload"); err != nil {
		return err
	}

	_, err := c.transport.Do(ctx, &Request{
		Method: http.MethodPut,
		Path:   jobPath(desc) + "/batches",
		Header: map[string]string{"Content-Type": contentTypeCSV},
		Body:   csvData,
	})
	if err != nil {
		return err
	}

	logger.With(logger.Fields{logger.FieldJobID: desc.ID}).WithSize(len(csvData)).Debug(ctx, "Uploaded CSV batch")
	return nil
}

// CompleteUpload moves an ingest job to UploadComplete so processing starts.
func (c *Client) CompleteUpload(ctx context.Context, desc domain.JobDescriptor) error {
	if err := validateIngest(desc, "complete upload"); err != nil {
		return err
	}

	_, err := c.transport.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   jobPath(desc),
		Body:   stateChangeRequest{State: domain.StateUploadComplete},
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx).WithField(logger.FieldJobID, desc.ID).Info("Bulk ingest upload completed")
	return nil
}

// FetchResults downloads one result category and decodes it. The format is
// validated before the request is sent.
func (c *Client) FetchResults(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory, format domain.ResultFormat) (domain.ResultSet, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}
	if kind, ok := category.Kind(); !ok || kind != desc.Kind {
		return nil, domain.InvalidArgumentf("result category %q is not available for %s jobs", string(category), desc.Kind)
	}

	resp, err := c.transport.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   jobPath(desc) + "/" + string(category),
	})
	if err != nil {
		return nil, err
	}

	set, err := DecodeResults(resp.Text(), format)
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldJobID: desc.ID,
		"category":        category,
		"format":          format,
	}).WithSize(len(resp.Body)).WithCount(set.Len()).Debug(ctx, "Fetched bulk job results")
	return set, nil
}

func jobPath(desc domain.JobDescriptor) string {
	return string(desc.Kind) + "/" + url.PathEscape(desc.ID)
}

func validateDescriptor(desc domain.JobDescriptor) error {
	if desc.ID == "" {
		return domain.InvalidArgumentf("job id is required")
	}
	switch desc.Kind {
	case domain.JobKindQuery, domain.JobKindIngest:
		return nil
	default:
		return domain.InvalidArgumentf("unsupported job kind %q", string(desc.Kind))
	}
}

func validateIngest(desc domain.JobDescriptor, op string) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}
	if desc.Kind != domain.JobKindIngest {
		return domain.InvalidArgumentf("%s is only valid for ingest jobs", op)
	}
	return nil
}

func decodeStatus(op string, body []byte) (domain.JobStatus, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var status domain.JobStatus
	if err := dec.Decode(&status); err != nil {
		return nil, &domain.ProtocolError{Op: op, Err: err}
	}
	if status == nil {
		status = domain.JobStatus{}
	}
	return status, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
