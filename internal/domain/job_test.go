package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    JobState
		terminal bool
	}{
		{StateJobComplete, true},
		{StateFailed, true},
		{StateAborted, true},
		{StateOpen, false},
		{StateUploadComplete, false},
		{StateInProgress, false},
		{"Queued", false},
		{"SomeFutureState", false},
		{"", false},
		{"jobcomplete", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
}

func TestJobStatus_NumberRecordsFailed(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   int64
	}{
		{"absent", JobStatus{}, 0},
		{"nil bag", nil, 0},
		{"json number", JobStatus{"numberRecordsFailed": json.Number("3")}, 3},
		{"json float number", JobStatus{"numberRecordsFailed": json.Number("2.0")}, 2},
		{"float64", JobStatus{"numberRecordsFailed": float64(5)}, 5},
		{"int", JobStatus{"numberRecordsFailed": 7}, 7},
		{"numeric string", JobStatus{"numberRecordsFailed": "4"}, 4},
		{"non-numeric string", JobStatus{"numberRecordsFailed": "many"}, 0},
		{"bool", JobStatus{"numberRecordsFailed": true}, 0},
		{"zero", JobStatus{"numberRecordsFailed": json.Number("0")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.NumberRecordsFailed())
		})
	}
}

func TestJobStatus_Accessors(t *testing.T) {
	status := JobStatus{
		"id":                  "750R0000000zlh9IAA",
		"state":               "Open",
		"object":              "Account",
		"operation":           "upsert",
		"externalIdFieldName": "Ext__c",
		"errorMessage":        "",
	}

	assert.Equal(t, "750R0000000zlh9IAA", status.ID())
	assert.Equal(t, StateOpen, status.State())
	assert.True(t, status.HasState())
	assert.Equal(t, "Account", status.Object())
	assert.Equal(t, OperationUpsert, status.Operation())
	assert.Equal(t, "Ext__c", status.ExternalIDField())

	assert.False(t, JobStatus{"state": 1}.HasState())
}

func TestJobStatus_Clone(t *testing.T) {
	orig := JobStatus{"state": "Open"}
	clone := orig.Clone()
	clone["state"] = "Aborted"

	assert.Equal(t, StateOpen, orig.State())
	assert.Nil(t, JobStatus(nil).Clone())
}

func TestParseJobKind(t *testing.T) {
	k, err := ParseJobKind(" Ingest ")
	require.NoError(t, err)
	assert.Equal(t, JobKindIngest, k)

	_, err = ParseJobKind("batch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestOperation_IsIngest(t *testing.T) {
	for _, op := range IngestOperations {
		assert.True(t, op.IsIngest(), op)
	}
	assert.False(t, OperationQuery.IsIngest())
	assert.False(t, Operation("merge").IsIngest())
}

func TestNewJobRecord(t *testing.T) {
	desc := JobDescriptor{ID: "750x", Kind: JobKindIngest, Operation: OperationInsert, Object: "Account"}

	rec := NewJobRecord(desc, JobStatus{
		"state":                  "JobComplete",
		"numberRecordsProcessed": json.Number("2"),
		"numberRecordsFailed":    json.Number("1"),
	})
	assert.Equal(t, "750x", rec.ID)
	assert.Equal(t, StateJobComplete, rec.State)
	assert.Equal(t, int64(2), rec.RecordsProcessed)
	assert.Equal(t, int64(1), rec.RecordsFailed)
	require.NotNil(t, rec.CompletedAt)

	open := NewJobRecord(desc, JobStatus{"state": "Open"})
	assert.Nil(t, open.CompletedAt)
}
