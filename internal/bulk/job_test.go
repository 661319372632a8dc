package bulk_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sfbulk/internal/bulk"
	"github.com/timmy/sfbulk/internal/bulk/bulktest"
	"github.com/timmy/sfbulk/internal/domain"
)

func newEmulatedClient(t *testing.T) (*bulk.Client, *bulktest.Server) {
	t.Helper()
	srv := bulktest.NewServer("test-token")
	t.Cleanup(srv.Close)

	client := bulk.New(&bulk.Config{
		BaseURL:     srv.BaseURL(),
		AccessToken: "test-token",
		Interval:    time.Millisecond,
		Timeout:     5 * time.Second,
	})
	return client, srv
}

func TestIngestJob_InsertEndToEnd(t *testing.T) {
	client, srv := newEmulatedClient(t)
	ctx := context.Background()

	job, err := client.Ingest.CreateInsert(ctx, "Account")
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, job.State())
	assert.Equal(t, "Account", job.Descriptor().Object)

	require.NoError(t, job.UploadData(ctx, "Name,Industry\nAcme,Tech\n"))
	require.NoError(t, job.CompleteUpload(ctx))

	status, err := job.Wait(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateJobComplete, status.State())
	assert.Equal(t, int64(0), status.NumberRecordsFailed())
	assert.Equal(t, int64(1), status.NumberRecordsProcessed())

	assert.True(t, job.IsSuccessful())
	assert.False(t, job.IsFailed())
	assert.False(t, job.IsAborted())
	assert.False(t, job.HasFailedRecords())

	set, err := job.SuccessfulResults(ctx, domain.FormatRecords)
	require.NoError(t, err)
	records := set.(domain.Records)
	require.Len(t, records.Items, 1)
	assert.Equal(t, "Acme", records.Items[0]["Name"])
	assert.Equal(t, "Tech", records.Items[0]["Industry"])
	assert.Equal(t, "true", records.Items[0]["sf__Created"])
	assert.NotEmpty(t, records.Items[0]["sf__Id"])

	id := job.ID()
	assert.Equal(t, 1, srv.CountRequests(http.MethodPost, "ingest"))
	assert.Equal(t, 1, srv.CountRequests(http.MethodPut, "ingest/"+id+"/batches"))
	assert.Equal(t, 1, srv.CountRequests(http.MethodPatch, "ingest/"+id))
	assert.Equal(t, 2, srv.CountRequests(http.MethodGet, "ingest/"+id))

	for _, r := range srv.Requests() {
		if r.Method == http.MethodPut {
			assert.Equal(t, "text/csv", r.ContentType)
		}
		if r.Method == http.MethodPatch {
			assert.JSONEq(t, `{"state":"UploadComplete"}`, string(r.Body))
		}
	}
}

func TestIngestJob_FailedRecords(t *testing.T) {
	client, srv := newEmulatedClient(t)
	srv.FailRecords(func(rec map[string]string) (string, bool) {
		if rec["Name"] == "" {
			return "REQUIRED_FIELD_MISSING:Required fields are missing: [Name]:Name --", true
		}
		return "", false
	})
	ctx := context.Background()

	job, err := client.Ingest.CreateUpsert(ctx, "Account", "External_Id__c")
	require.NoError(t, err)
	require.NoError(t, job.UploadData(ctx, "External_Id__c,Name\nA-1,Acme\nA-2,\n"))

	assert.False(t, job.HasFailedRecords(), "counts come from the cached snapshot only")

	require.NoError(t, job.CompleteUpload(ctx))
	_, err = job.Wait(ctx, time.Millisecond)
	require.NoError(t, err)

	assert.True(t, job.IsSuccessful())
	assert.True(t, job.HasFailedRecords())
	assert.Equal(t, int64(2), job.Info().NumberRecordsProcessed())

	set, err := job.FailedResults(ctx, domain.FormatRecords)
	require.NoError(t, err)
	failed := set.(domain.Records)
	require.Len(t, failed.Items, 1)
	assert.Equal(t, "A-2", failed.Items[0]["External_Id__c"])
	assert.True(t, strings.HasPrefix(failed.Items[0]["sf__Error"], "REQUIRED_FIELD_MISSING"))

	set, err = job.SuccessfulResults(ctx, domain.FormatRows)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}

func TestIngestJob_AbortedLeavesUnprocessedRecords(t *testing.T) {
	client, srv := newEmulatedClient(t)
	srv.SetIngestStates("InProgress", "Aborted")
	ctx := context.Background()

	job, err := client.Ingest.CreateDelete(ctx, "Contact")
	require.NoError(t, err)
	require.NoError(t, job.UploadData(ctx, "Id\n003000000000001AAA\n003000000000002AAA\n"))
	require.NoError(t, job.CompleteUpload(ctx))

	_, err = job.Wait(ctx, 0)
	require.NoError(t, err)
	assert.True(t, job.IsAborted())
	assert.False(t, job.IsSuccessful())

	set, err := job.UnprocessedRecords(ctx, domain.FormatRecords)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}

func TestIngestJob_RefreshIsIdempotent(t *testing.T) {
	client, srv := newEmulatedClient(t)
	ctx := context.Background()

	job, err := client.Ingest.CreateInsert(ctx, "Account")
	require.NoError(t, err)
	srv.ScriptStates(job.ID(), "JobComplete")

	first, err := job.Refresh(ctx)
	require.NoError(t, err)
	second, err := job.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, second, job.Info())
}

func TestIngestJob_Attach(t *testing.T) {
	client, _ := newEmulatedClient(t)
	ctx := context.Background()

	created, err := client.Ingest.CreateUpsert(ctx, "Account", "External_Id__c")
	require.NoError(t, err)

	attached, err := client.Ingest.Attach(ctx, created.ID())
	require.NoError(t, err)

	assert.Equal(t, created.Descriptor(), attached.Descriptor())
	assert.Equal(t, domain.StateOpen, attached.State())
}

func TestIngestJob_AttachUnknownID(t *testing.T) {
	client, _ := newEmulatedClient(t)

	_, err := client.Ingest.Attach(context.Background(), "750DOESNOTEXIST")

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.StatusCode)
	assert.Equal(t, "NOT_FOUND", terr.ErrorCode)
}

func TestQueryJob_EndToEnd(t *testing.T) {
	client, srv := newEmulatedClient(t)
	srv.SetQueryStates("InProgress", "InProgress", "JobComplete")
	srv.SetQueryResults("Id,Name\n001A,Acme\n001B,Globex\n")
	ctx := context.Background()

	job, err := client.Query.Create(ctx, "SELECT Id, Name FROM Account", false)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationQuery, job.Descriptor().Operation)

	status, err := job.Wait(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.StateJobComplete, status.State())
	assert.Equal(t, 3, srv.CountRequests(http.MethodGet, "query/"+job.ID()))

	set, err := job.Results(ctx, domain.FormatRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.Records{
		Fields: []string{"Id", "Name"},
		Items:  []domain.Record{{"Id": "001A", "Name": "Acme"}, {"Id": "001B", "Name": "Globex"}},
	}, set)

	raw, err := job.Results(ctx, domain.FormatRaw)
	require.NoError(t, err)
	assert.Equal(t, domain.Raw("Id,Name\n001A,Acme\n001B,Globex\n"), raw)
}

func TestQueryJob_UnsupportedFormatSendsNothing(t *testing.T) {
	client, srv := newEmulatedClient(t)
	ctx := context.Background()

	job, err := client.Query.Create(ctx, "SELECT Id FROM Account", true)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationQueryAll, job.Descriptor().Operation)
	before := len(srv.Requests())

	_, err = job.Results(ctx, "xml")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Len(t, srv.Requests(), before)
}

func TestQueryJob_MalformedQueryRejected(t *testing.T) {
	client, _ := newEmulatedClient(t)

	_, err := client.Query.Create(context.Background(), "DELETE Account", false)

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "MALFORMED_QUERY", terr.ErrorCode)
}

func TestQueryJob_Attach(t *testing.T) {
	client, _ := newEmulatedClient(t)
	ctx := context.Background()

	created, err := client.Query.Create(ctx, "SELECT Id FROM Account", false)
	require.NoError(t, err)

	attached, err := client.Query.Attach(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, created.ID(), attached.ID())
	assert.Equal(t, domain.OperationQuery, attached.Descriptor().Operation)
}

func TestClient_RejectsBadToken(t *testing.T) {
	srv := bulktest.NewServer("right")
	t.Cleanup(srv.Close)
	client := bulk.New(&bulk.Config{BaseURL: srv.BaseURL(), AccessToken: "wrong"})

	_, err := client.Ingest.CreateInsert(context.Background(), "Account")

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusUnauthorized, terr.StatusCode)
	assert.Equal(t, "INVALID_SESSION_ID", terr.ErrorCode)
}
