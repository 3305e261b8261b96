package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
)

// UpsertResult reports whether an ingested event created a new record or
// refreshed an existing one.
type UpsertResult struct {
	Inserted bool
}

// EligibilityFilter bounds the processor's selection query.
type EligibilityFilter struct {
	BatchSize        int
	EligibleStatuses []string
	ExcludedStatuses []string
	MaxRetryCount    int
	// RetryCutoffs[i] is the latest last_failed_at for which a record with
	// retry_count == i is already eligible again. Index past the end clamps
	// to the last entry.
	RetryCutoffs []time.Time
	Now          time.Time
}

// ReturnRecordRepository is the record store.
type ReturnRecordRepository interface {
	Upsert(ctx context.Context, record *model.ReturnRecord) (UpsertResult, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ReturnRecord, error)
	GetByReceiptID(ctx context.Context, receiptID string) (*model.ReturnRecord, error)
	SelectEligible(ctx context.Context, filter EligibilityFilter) ([]*model.ReturnRecord, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, matchedAt, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, submitStarted bool) error
	MarkSubmitStarted(ctx context.Context, id uuid.UUID) error
	ForceRequeue(ctx context.Context, id uuid.UUID) error
	RequeueStuck(ctx context.Context, threshold time.Duration) (int64, error)
	List(ctx context.Context, status model.ProcessingStatus, limit, offset int) ([]*model.ReturnRecord, error)
	CountByStatus(ctx context.Context) (*model.StatusCounts, error)
}

// AutomationConfigRepository owns the singleton configuration row.
type AutomationConfigRepository interface {
	Get(ctx context.Context) (*model.AutomationConfig, error)
	Replace(ctx context.Context, cfg *model.AutomationConfig) error
	TouchFetch(ctx context.Context, at time.Time, lastError *string) error
	TouchProcess(ctx context.Context, at time.Time, lastError *string) error
}

// ExecutionLogRepository is the append-only run log.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *model.ExecutionLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]*model.ExecutionLogEntry, error)
}
