package bulk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sfbulk/internal/domain"
)

func TestDecodeResults_Records(t *testing.T) {
	set, err := DecodeResults("Name,Industry\nAcme,Tech\n", domain.FormatRecords)
	require.NoError(t, err)

	records, ok := set.(domain.Records)
	require.True(t, ok)
	assert.Equal(t, []string{"Name", "Industry"}, records.Fields)
	assert.Equal(t, []domain.Record{{"Name": "Acme", "Industry": "Tech"}}, records.Items)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, domain.FormatRecords, set.Format())
}

func TestDecodeResults_Rows(t *testing.T) {
	set, err := DecodeResults("Name,Industry\nAcme,Tech\n", domain.FormatRows)
	require.NoError(t, err)

	assert.Equal(t, domain.Rows{{"Name", "Industry"}, {"Acme", "Tech"}}, set)
}

func TestDecodeResults_RawIsUnchanged(t *testing.T) {
	text := "\ufeffName,Industry\r\nAcme,Tech\r\n"
	set, err := DecodeResults(text, domain.FormatRaw)
	require.NoError(t, err)

	assert.Equal(t, domain.Raw(text), set)
}

func TestDecodeResults_RecordShapes(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		fields []string
		items  []domain.Record
	}{
		{
			name:   "empty payload",
			text:   "",
			fields: nil,
			items:  []domain.Record{},
		},
		{
			name:   "header only",
			text:   "Id,Name\n",
			fields: []string{"Id", "Name"},
			items:  []domain.Record{},
		},
		{
			name:   "row order preserved",
			text:   "Name\nA\nB\nC\n",
			fields: []string{"Name"},
			items:  []domain.Record{{"Name": "A"}, {"Name": "B"}, {"Name": "C"}},
		},
		{
			name:   "short row",
			text:   "Id,Name\n1\n",
			fields: []string{"Id", "Name"},
			items:  []domain.Record{{"Id": "1", "Name": ""}},
		},
		{
			name:   "surplus cells dropped",
			text:   "Id\n1,extra\n",
			fields: []string{"Id"},
			items:  []domain.Record{{"Id": "1"}},
		},
		{
			name:   "duplicate header last wins",
			text:   "A,A\n1,2\n",
			fields: []string{"A", "A"},
			items:  []domain.Record{{"A": "2"}},
		},
		{
			name:   "quoted commas and newlines",
			text:   "Name,Description\n\"Acme, Inc\",\"line1\nline2\"\n",
			fields: []string{"Name", "Description"},
			items:  []domain.Record{{"Name": "Acme, Inc", "Description": "line1\nline2"}},
		},
		{
			name:   "byte order mark stripped",
			text:   "\ufeffName\nAcme\n",
			fields: []string{"Name"},
			items:  []domain.Record{{"Name": "Acme"}},
		},
		{
			name:   "crlf line endings",
			text:   "Name\r\nAcme\r\n",
			fields: []string{"Name"},
			items:  []domain.Record{{"Name": "Acme"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := DecodeResults(tt.text, domain.FormatRecords)
			require.NoError(t, err)

			records := set.(domain.Records)
			assert.Equal(t, tt.fields, records.Fields)
			assert.Equal(t, tt.items, records.Items)
		})
	}
}

func TestDecodeResults_UnsupportedFormat(t *testing.T) {
	_, err := DecodeResults("Name\nAcme\n", "xml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Contains(t, err.Error(), `"xml"`)
	assert.Contains(t, err.Error(), "records, rows, raw")
}

func TestDecodeResults_MalformedCSV(t *testing.T) {
	_, err := DecodeResults("Name\nAc\"me\n", domain.FormatRows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse CSV results")
}
