package domain

import "time"

// JobRecord is the ledger entry kept for every bulk job the runner has observed.
type JobRecord struct {
	ID               string     `gorm:"type:text;primaryKey" json:"id"`
	Kind             JobKind    `gorm:"type:text;not null;index" json:"kind"`
	Operation        Operation  `gorm:"type:text;not null" json:"operation"`
	Object           string     `gorm:"type:text;index" json:"object,omitempty"`
	ExternalIDField  string     `gorm:"type:text" json:"external_id_field,omitempty"`
	State            JobState   `gorm:"type:text;index" json:"state"`
	RecordsProcessed int64      `gorm:"default:0" json:"records_processed"`
	RecordsFailed    int64      `gorm:"default:0" json:"records_failed"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ResultKeys       string     `json:"result_keys,omitempty"` // comma separated archive keys
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for JobRecord.
func (JobRecord) TableName() string {
	return "bulk_jobs"
}

// NewJobRecord builds a ledger entry from a descriptor and its latest snapshot.
func NewJobRecord(desc JobDescriptor, status JobStatus) *JobRecord {
	rec := &JobRecord{
		ID:               desc.ID,
		Kind:             desc.Kind,
		Operation:        desc.Operation,
		Object:           desc.Object,
		ExternalIDField:  desc.ExternalIDField,
		State:            status.State(),
		RecordsProcessed: status.NumberRecordsProcessed(),
		RecordsFailed:    status.NumberRecordsFailed(),
		ErrorMessage:     status.ErrorMessage(),
	}
	if rec.State.IsTerminal() {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}
	return rec
}
