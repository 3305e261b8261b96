package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RunType string

const (
	RunTypeFetch   RunType = "FETCH"
	RunTypeProcess RunType = "PROCESS"
)

type RunOutcome string

const (
	RunOutcomeSuccess RunOutcome = "success"
	RunOutcomeFailed  RunOutcome = "failed"
	RunOutcomePartial RunOutcome = "partial"
)

type TriggerSource string

const (
	TriggerScheduler TriggerSource = "scheduler"
	TriggerManual    TriggerSource = "manual"
)

// ExecutionLogEntry records the outcome of a single collector or processor
// run. Entries are append-only and never consulted for control flow.
type ExecutionLogEntry struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	RunType        RunType         `db:"run_type" json:"run_type"`
	Outcome        RunOutcome      `db:"outcome" json:"outcome"`
	StartedAt      time.Time       `db:"started_at" json:"started_at"`
	CompletedAt    time.Time       `db:"completed_at" json:"completed_at"`
	ItemsTotal     int             `db:"items_total" json:"items_total"`
	ItemsSucceeded int             `db:"items_succeeded" json:"items_succeeded"`
	ItemsFailed    int             `db:"items_failed" json:"items_failed"`
	TriggeredBy    TriggerSource   `db:"triggered_by" json:"triggered_by"`
	Detail         json.RawMessage `db:"detail" json:"detail,omitempty"`
	ErrorMessage   *string         `db:"error_message" json:"error_message,omitempty"`
}

// RunItemNote is one per-item entry in an ExecutionLogEntry detail payload.
type RunItemNote struct {
	SourceReceiptID string `json:"source_receipt_id"`
	Outcome         string `json:"outcome"`
	ErrorKind       string `json:"error_kind,omitempty"`
	Error           string `json:"error,omitempty"`
}
