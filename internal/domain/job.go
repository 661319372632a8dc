package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// JobKind selects the endpoint family a bulk job belongs to.
type JobKind string

const (
	JobKindQuery  JobKind = "query"
	JobKindIngest JobKind = "ingest"
)

// ParseJobKind converts a user supplied kind ("query" or "ingest") into a JobKind.
func ParseJobKind(s string) (JobKind, error) {
	switch k := JobKind(strings.ToLower(strings.TrimSpace(s))); k {
	case JobKindQuery, JobKindIngest:
		return k, nil
	default:
		return "", InvalidArgumentf("unsupported job kind %q, allowed kinds are: query, ingest", s)
	}
}

// Operation is the verb a job was created with.
type Operation string

const (
	OperationQuery    Operation = "query"
	OperationQueryAll Operation = "queryAll"

	OperationInsert     Operation = "insert"
	OperationUpdate     Operation = "update"
	OperationUpsert     Operation = "upsert"
	OperationDelete     Operation = "delete"
	OperationHardDelete Operation = "hardDelete"
)

// IngestOperations lists the operations accepted by ingest jobs.
var IngestOperations = []Operation{
	OperationInsert,
	OperationUpdate,
	OperationUpsert,
	OperationDelete,
	OperationHardDelete,
}

// IsIngest reports whether op is a legal ingest operation.
func (op Operation) IsIngest() bool {
	for _, o := range IngestOperations {
		if op == o {
			return true
		}
	}
	return false
}

// JobState is the server reported job state. The set of values is open; only
// the terminal states are recognized by the client.
type JobState string

const (
	StateOpen           JobState = "Open"
	StateUploadComplete JobState = "UploadComplete"
	StateInProgress     JobState = "InProgress"
	StateJobComplete    JobState = "JobComplete"
	StateFailed         JobState = "Failed"
	StateAborted        JobState = "Aborted"
)

// TerminalStates lists the states a job never leaves.
var TerminalStates = []JobState{StateJobComplete, StateFailed, StateAborted}

// IsTerminal reports whether no further transitions are expected after s.
func (s JobState) IsTerminal() bool {
	switch s {
	case StateJobComplete, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

// JobDescriptor identifies one server side job.
type JobDescriptor struct {
	ID              string    `json:"id"`
	Kind            JobKind   `json:"kind"`
	Operation       Operation `json:"operation"`
	Object          string    `json:"object,omitempty"`
	ExternalIDField string    `json:"external_id_field,omitempty"`
}

// Status keys recognized by the client.
const (
	StatusKeyID                     = "id"
	StatusKeyState                  = "state"
	StatusKeyObject                 = "object"
	StatusKeyOperation              = "operation"
	StatusKeyExternalIDField        = "externalIdFieldName"
	StatusKeyNumberRecordsFailed    = "numberRecordsFailed"
	StatusKeyNumberRecordsProcessed = "numberRecordsProcessed"
	StatusKeyErrorMessage           = "errorMessage"
)

// JobStatus is the last known snapshot of a job as reported by the server.
// Apart from a handful of recognized keys it is treated as an opaque bag.
type JobStatus map[string]any

// ID returns the job id reported in the snapshot.
func (s JobStatus) ID() string {
	return s.str(StatusKeyID)
}

// State returns the reported job state, or "" if absent.
func (s JobStatus) State() JobState {
	return JobState(s.str(StatusKeyState))
}

// HasState reports whether the snapshot carries a state value.
func (s JobStatus) HasState() bool {
	_, ok := s[StatusKeyState].(string)
	return ok
}

// Object returns the sObject name of an ingest job.
func (s JobStatus) Object() string {
	return s.str(StatusKeyObject)
}

// Operation returns the operation the job was created with.
func (s JobStatus) Operation() Operation {
	return Operation(s.str(StatusKeyOperation))
}

// ExternalIDField returns the upsert key of an ingest job.
func (s JobStatus) ExternalIDField() string {
	return s.str(StatusKeyExternalIDField)
}

// ErrorMessage returns the server supplied failure reason, if any.
func (s JobStatus) ErrorMessage() string {
	return s.str(StatusKeyErrorMessage)
}

// NumberRecordsFailed returns the failed record count; absent or non-numeric
// values count as 0.
func (s JobStatus) NumberRecordsFailed() int64 {
	return s.count(StatusKeyNumberRecordsFailed)
}

// NumberRecordsProcessed returns the processed record count; absent or
// non-numeric values count as 0.
func (s JobStatus) NumberRecordsProcessed() int64 {
	return s.count(StatusKeyNumberRecordsProcessed)
}

// Clone returns a shallow copy so callers cannot mutate a cached snapshot.
func (s JobStatus) Clone() JobStatus {
	if s == nil {
		return nil
	}
	out := make(JobStatus, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s JobStatus) str(key string) string {
	v, _ := s[key].(string)
	return v
}

func (s JobStatus) count(key string) int64 {
	switch v := s[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return truncate(f)
		}
	case float64:
		return truncate(v)
	case float32:
		return truncate(float64(v))
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func truncate(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}
