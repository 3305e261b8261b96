package model

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// IsTerminal reports whether a status must never be regressed by ingestion.
func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingStatusCompleted
}

type EventType string

const (
	EventTypeReturn EventType = "RETURN"
	EventTypeCancel EventType = "CANCEL"
)

// ReturnRecord is one return/cancellation event reported by the source
// marketplace. Created by the collector on first sighting and never deleted;
// the processor owns every processing_* field after that.
type ReturnRecord struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	SourceReceiptID  string           `db:"source_receipt_id" json:"source_receipt_id"`
	SourceOrderID    string           `db:"source_order_id" json:"source_order_id"`
	ProductName      string           `db:"product_name" json:"product_name"`
	RecipientName    string           `db:"recipient_name" json:"recipient_name"`
	RecipientPhone   string           `db:"recipient_phone" json:"recipient_phone"`
	EventType        EventType        `db:"event_type" json:"event_type"`
	SourceStatus     string           `db:"source_status" json:"source_status"`
	ReasonCategory   string           `db:"reason_category" json:"reason_category"`
	ProcessingStatus ProcessingStatus `db:"processing_status" json:"processing_status"`
	RetryCount       int              `db:"retry_count" json:"retry_count"`
	LastError        *string          `db:"last_error" json:"last_error,omitempty"`
	LastFailedAt     *time.Time       `db:"last_failed_at" json:"last_failed_at,omitempty"`
	ForceRequeued    bool             `db:"force_requeued" json:"force_requeued"`
	SubmitStarted    bool             `db:"submit_started" json:"submit_started"`
	MatchedAt        *time.Time       `db:"matched_at" json:"matched_at,omitempty"`
	CompletedAt      *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// NeedsVerification reports whether a prior attempt may have reached the
// fulfillment platform's submit step without a recorded outcome. Such records
// must be re-verified externally before the return action is replayed.
func (r *ReturnRecord) NeedsVerification() bool {
	return r.SubmitStarted && r.ProcessingStatus != ProcessingStatusCompleted
}

// StatusCounts aggregates record counts per processing status.
type StatusCounts struct {
	Pending    int64 `db:"pending" json:"pending"`
	Processing int64 `db:"processing" json:"processing"`
	Completed  int64 `db:"completed" json:"completed"`
	Failed     int64 `db:"failed" json:"failed"`
}
