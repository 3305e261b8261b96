package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
)

type returnRecordRepository struct {
	BaseRepository
}

func NewReturnRecordRepository(base BaseRepository) repository.ReturnRecordRepository {
	return &returnRecordRepository{base}
}

// Upsert inserts an unseen event as pending, or refreshes the descriptive and
// source-status fields of a known one. Processing fields are never touched, so
// re-ingestion cannot regress a record's lifecycle.
func (r *returnRecordRepository) Upsert(ctx context.Context, record *model.ReturnRecord) (repository.UpsertResult, error) {
	query := `
		INSERT INTO return_records (
			id, source_receipt_id, source_order_id, product_name,
			recipient_name, recipient_phone, event_type, source_status,
			reason_category, processing_status, retry_count,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $11
		)
		ON CONFLICT (source_receipt_id) DO UPDATE SET
			source_order_id = EXCLUDED.source_order_id,
			product_name = EXCLUDED.product_name,
			recipient_name = EXCLUDED.recipient_name,
			recipient_phone = EXCLUDED.recipient_phone,
			event_type = EXCLUDED.event_type,
			source_status = EXCLUDED.source_status,
			reason_category = EXCLUDED.reason_category,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`
	now := time.Now()
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		uuid.New(),
		record.SourceReceiptID,
		record.SourceOrderID,
		record.ProductName,
		record.RecipientName,
		record.RecipientPhone,
		record.EventType,
		record.SourceStatus,
		record.ReasonCategory,
		model.ProcessingStatusPending,
		now,
	).Scan(&inserted)
	if err != nil {
		return repository.UpsertResult{}, fmt.Errorf("failed to upsert return record: %w", err)
	}
	return repository.UpsertResult{Inserted: inserted}, nil
}

func (r *returnRecordRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReturnRecord, error) {
	query := `SELECT * FROM return_records WHERE id = $1`
	var record model.ReturnRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("return record not found")
		}
		return nil, fmt.Errorf("failed to get return record: %w", err)
	}
	return &record, nil
}

func (r *returnRecordRepository) GetByReceiptID(ctx context.Context, receiptID string) (*model.ReturnRecord, error) {
	query := `SELECT * FROM return_records WHERE source_receipt_id = $1`
	var record model.ReturnRecord
	if err := r.db.GetContext(ctx, &record, query, receiptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("return record not found")
		}
		return nil, fmt.Errorf("failed to get return record: %w", err)
	}
	return &record, nil
}

// SelectEligible picks the processor's batch: pending records whose source
// status passes the allow/deny lists, plus failed records whose retry delay
// has elapsed and whose retry budget is not exhausted. Force-requeued records
// skip the status filters entirely. Oldest receipt id first.
func (r *returnRecordRepository) SelectEligible(ctx context.Context, f repository.EligibilityFilter) ([]*model.ReturnRecord, error) {
	cutoffs := f.RetryCutoffs
	if len(cutoffs) == 0 {
		cutoffs = []time.Time{f.Now}
	}
	query := `
		SELECT * FROM return_records
		WHERE force_requeued = TRUE
		   OR (
			(cardinality($1::text[]) = 0 OR source_status = ANY($1))
			AND NOT (source_status = ANY($2))
			AND (
				processing_status = 'pending'
				OR (
					processing_status = 'failed'
					AND retry_count < $3
					AND (
						last_failed_at IS NULL
						OR last_failed_at <= ($4::timestamptz[])[LEAST(retry_count + 1, $5)]
					)
				)
			)
		   )
		ORDER BY source_receipt_id ASC
		LIMIT $6
	`
	var records []*model.ReturnRecord
	err := r.db.SelectContext(ctx, &records, query,
		pq.Array(f.EligibleStatuses),
		pq.Array(f.ExcludedStatuses),
		f.MaxRetryCount,
		pq.Array(cutoffs),
		len(cutoffs),
		f.BatchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible records: %w", err)
	}
	return records, nil
}

// MarkProcessing is the mutual-exclusion transition. It only succeeds while
// the record is still in a selectable state; a false return means another run
// already claimed it.
func (r *returnRecordRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE return_records
		SET processing_status = 'processing', updated_at = NOW()
		WHERE id = $1 AND processing_status IN ('pending', 'failed')
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark record processing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *returnRecordRepository) MarkCompleted(ctx context.Context, id uuid.UUID, matchedAt, completedAt time.Time) error {
	query := `
		UPDATE return_records
		SET processing_status = 'completed',
			matched_at = $2,
			completed_at = $3,
			last_error = NULL,
			force_requeued = FALSE,
			submit_started = FALSE,
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, matchedAt, completedAt); err != nil {
		return fmt.Errorf("failed to mark record completed: %w", err)
	}
	return nil
}

func (r *returnRecordRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, submitStarted bool) error {
	query := `
		UPDATE return_records
		SET processing_status = 'failed',
			retry_count = retry_count + 1,
			last_error = $2,
			last_failed_at = NOW(),
			force_requeued = FALSE,
			submit_started = submit_started OR $3,
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, lastError, submitStarted); err != nil {
		return fmt.Errorf("failed to mark record failed: %w", err)
	}
	return nil
}

// MarkSubmitStarted is persisted immediately before the non-idempotent submit
// step so a crash mid-submit leaves evidence for the duplicate-action guard.
func (r *returnRecordRepository) MarkSubmitStarted(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE return_records SET submit_started = TRUE, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark submit started: %w", err)
	}
	return nil
}

// ForceRequeue puts a terminal-failed record back into the pipeline once,
// bypassing the max-retry gate. Retry count is left intact for the audit trail.
func (r *returnRecordRepository) ForceRequeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE return_records
		SET processing_status = 'pending', force_requeued = TRUE, updated_at = NOW()
		WHERE id = $1 AND processing_status = 'failed'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to force requeue record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("record is not in a failed state")
	}
	return nil
}

// RequeueStuck recovers records abandoned in processing past the threshold,
// typically after a crash between the claim and the actuator outcome. The
// external outcome is unknown, so submit_started forces verification on the
// next attempt.
func (r *returnRecordRepository) RequeueStuck(ctx context.Context, threshold time.Duration) (int64, error) {
	query := `
		UPDATE return_records
		SET processing_status = 'failed',
			retry_count = retry_count + 1,
			last_error = 'stuck in processing beyond recovery threshold',
			last_failed_at = NOW(),
			submit_started = TRUE,
			updated_at = NOW()
		WHERE processing_status = 'processing'
		  AND updated_at < NOW() - ($1 * INTERVAL '1 second')
	`
	result, err := r.db.ExecContext(ctx, query, int64(threshold.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck records: %w", err)
	}
	return result.RowsAffected()
}

func (r *returnRecordRepository) List(ctx context.Context, status model.ProcessingStatus, limit, offset int) ([]*model.ReturnRecord, error) {
	var records []*model.ReturnRecord
	var err error
	if status == "" {
		query := `SELECT * FROM return_records ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		err = r.db.SelectContext(ctx, &records, query, limit, offset)
	} else {
		query := `SELECT * FROM return_records WHERE processing_status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		err = r.db.SelectContext(ctx, &records, query, status, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list return records: %w", err)
	}
	return records, nil
}

func (r *returnRecordRepository) CountByStatus(ctx context.Context) (*model.StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE processing_status = 'pending')    AS pending,
			COUNT(*) FILTER (WHERE processing_status = 'processing') AS processing,
			COUNT(*) FILTER (WHERE processing_status = 'completed')  AS completed,
			COUNT(*) FILTER (WHERE processing_status = 'failed')     AS failed
		FROM return_records
	`
	var counts model.StatusCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count records by status: %w", err)
	}
	return &counts, nil
}
