package repository

import (
	"context"
	"errors"

	"github.com/timmy/sfbulk/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrJobNotFound is returned when the ledger has no entry for a job id.
var ErrJobNotFound = errors.New("job not found in ledger")

// JobFilter narrows List results. Zero fields match everything.
type JobFilter struct {
	Kind   domain.JobKind
	State  domain.JobState
	Object string
	Active bool // only jobs whose last known state is not terminal
}

// JobRepository stores ledger entries for observed bulk jobs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Save inserts rec or updates the existing entry with the same job id.
// An empty ResultKeys never overwrites keys recorded earlier.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: ledger entry built from the latest job snapshot.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *JobRepository) Save(ctx context.Context, rec *domain.JobRecord) error {
	columns := []string{
		"kind", "operation", "object", "external_id_field", "state",
		"records_processed", "records_failed", "error_message", "completed_at", "updated_at",
	}
	if rec.ResultKeys != "" {
		columns = append(columns, "result_keys")
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(rec).Error
}

// GetByID retrieves a ledger entry by job id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: bulk job id.
// Returns:
//   - *domain.JobRecord: ledger entry if found.
//   - error: ErrJobNotFound when missing, other errors on lookup failure.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List returns ledger entries matching filter, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: optional kind, state and object constraints.
//   - limit: maximum number of entries.
//   - offset: number of entries to skip.
// Returns:
//   - []domain.JobRecord: matching entries.
//   - error: non-nil if query fails.
func (r *JobRepository) List(ctx context.Context, filter JobFilter, limit, offset int) ([]domain.JobRecord, error) {
	var recs []domain.JobRecord
	err := r.scoped(ctx, filter).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Count returns the number of ledger entries matching filter.
func (r *JobRepository) Count(ctx context.Context, filter JobFilter) (int64, error) {
	var count int64
	if err := r.scoped(ctx, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a ledger entry.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.JobRecord{}, "id = ?", id).Error
}

func (r *JobRepository) scoped(ctx context.Context, filter JobFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&domain.JobRecord{})
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Object != "" {
		q = q.Where("object = ?", filter.Object)
	}
	if filter.Active {
		q = q.Where("state NOT IN ?", domain.TerminalStates)
	}
	return q
}
