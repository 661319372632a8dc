package bulk

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sfbulk/internal/domain"
)

type seenRequest struct {
	method        string
	path          string
	contentType   string
	authorization string
	body          string
}

func newRecordingServer(t *testing.T, status int, reply string) (*httptest.Server, func() []seenRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{
			method:        r.Method,
			path:          r.URL.Path,
			contentType:   r.Header.Get("Content-Type"),
			authorization: r.Header.Get("Authorization"),
			body:          string(body),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func TestRestyTransport_RequestScopedHeaders(t *testing.T) {
	srv, seen := newRecordingServer(t, http.StatusOK, `{"id":"750xx","state":"Open"}`)
	transport := NewRestyTransport(&TransportConfig{
		BaseURL:     srv.URL + "/services/data/v64.0/jobs",
		AccessToken: "token-1",
	})
	ctx := context.Background()

	_, err := transport.Do(ctx, &Request{
		Method: http.MethodPut,
		Path:   "ingest/750xx/batches",
		Header: map[string]string{"Content-Type": contentTypeCSV},
		Body:   []byte("Name\nAcme\n"),
	})
	require.NoError(t, err)

	_, err = transport.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   "ingest",
		Body:   map[string]string{"object": "Account", "operation": "insert"},
	})
	require.NoError(t, err)

	reqs := seen()
	require.Len(t, reqs, 2)

	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/services/data/v64.0/jobs/ingest/750xx/batches", reqs[0].path)
	assert.Equal(t, "text/csv", reqs[0].contentType)
	assert.Equal(t, "Name\nAcme\n", reqs[0].body)

	assert.Equal(t, http.MethodPost, reqs[1].method)
	assert.Equal(t, "/services/data/v64.0/jobs/ingest", reqs[1].path)
	assert.Contains(t, reqs[1].contentType, "application/json")
	assert.JSONEq(t, `{"object":"Account","operation":"insert"}`, reqs[1].body)

	for _, r := range reqs {
		assert.Equal(t, "Bearer token-1", r.authorization)
	}
}

func TestRestyTransport_HTTPError(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusBadRequest,
		`[{"errorCode":"INVALIDJOB","message":"External ID was blank for upsert"}]`)
	transport := NewRestyTransport(&TransportConfig{BaseURL: srv.URL, AccessToken: "t"})

	resp, err := transport.Do(context.Background(), &Request{Method: http.MethodPost, Path: "ingest", Body: map[string]string{}})
	assert.Nil(t, resp)

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadRequest, terr.StatusCode)
	assert.Equal(t, "INVALIDJOB", terr.ErrorCode)
	assert.Equal(t, "External ID was blank for upsert", terr.Message)
	assert.Equal(t, "ingest", terr.Path)
}

func TestRestyTransport_ConnectionFailure(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	transport := NewRestyTransport(&TransportConfig{BaseURL: url, AccessToken: "t"})
	_, err := transport.Do(context.Background(), &Request{Method: http.MethodGet, Path: "query/750"})

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 0, terr.StatusCode)
	assert.Error(t, terr.Err)
}

func TestRestyTransport_ResponseText(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusOK, "Id,Name\n001,Acme\n")
	transport := NewRestyTransport(&TransportConfig{BaseURL: srv.URL, AccessToken: "t"})

	resp, err := transport.Do(context.Background(), &Request{Method: http.MethodGet, Path: "query/750/results"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Id,Name\n001,Acme\n", resp.Text())
}

func TestRestyTransport_ThrottleHonorsContext(t *testing.T) {
	srv, seen := newRecordingServer(t, http.StatusOK, `{}`)
	transport := NewRestyTransport(&TransportConfig{
		BaseURL:           srv.URL,
		AccessToken:       "t",
		RequestsPerSecond: 0.001,
	})

	_, err := transport.Do(context.Background(), &Request{Method: http.MethodGet, Path: "query/750"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = transport.Do(ctx, &Request{Method: http.MethodGet, Path: "query/750"})

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Len(t, seen(), 1)
}
