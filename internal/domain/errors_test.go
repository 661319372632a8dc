package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFormat_Validate(t *testing.T) {
	for _, f := range ResultFormats {
		assert.NoError(t, f.Validate())
	}

	err := ResultFormat("xml").Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Contains(t, err.Error(), `"xml"`)
	assert.Contains(t, err.Error(), "records, rows, raw")
}

func TestParseResultCategory(t *testing.T) {
	tests := []struct {
		in   string
		want ResultCategory
		kind JobKind
	}{
		{"results", CategoryResults, JobKindQuery},
		{"successfulResults", CategorySuccessfulResults, JobKindIngest},
		{"failedresults", CategoryFailedResults, JobKindIngest},
		{"unprocessedRecords", CategoryUnprocessedRecords, JobKindIngest},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResultCategory(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			kind, ok := got.Kind()
			assert.True(t, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}

	_, err := ParseResultCategory("everything")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestResultSet_Variants(t *testing.T) {
	sets := []ResultSet{
		Records{Fields: []string{"Name"}, Items: []Record{{"Name": "Acme"}}},
		Rows{{"Name"}, {"Acme"}},
		Raw("Name\nAcme\n"),
	}
	wantFormats := []ResultFormat{FormatRecords, FormatRows, FormatRaw}
	wantLens := []int{1, 2, 10}

	for i, set := range sets {
		assert.Equal(t, wantFormats[i], set.Format())
		assert.Equal(t, wantLens[i], set.Len())
	}
}

func TestNewHTTPError(t *testing.T) {
	body := []byte(`[{"errorCode":"INVALIDJOB","message":"Unable to find object: Acount"}]`)
	err := NewHTTPError("POST", "ingest", 400, body)

	assert.Equal(t, 400, err.StatusCode)
	assert.Equal(t, "INVALIDJOB", err.ErrorCode)
	assert.Equal(t, "Unable to find object: Acount", err.Message)
	assert.True(t, strings.Contains(err.Error(), "HTTP 400"))

	plain := NewHTTPError("GET", "query/1", 503, []byte("unavailable"))
	assert.Empty(t, plain.ErrorCode)
	assert.Contains(t, plain.Error(), "unavailable")
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&TransportError{Method: "GET", Path: "query/1", Err: cause})

	assert.True(t, errors.Is(err, cause))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
}

func TestProtocolError(t *testing.T) {
	err := &ProtocolError{Op: "create query job", Field: "id"}
	assert.Equal(t, `bulk create query job: response missing "id"`, err.Error())
}
