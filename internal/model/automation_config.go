package model

import (
	"time"

	"github.com/lib/pq"
)

// AutomationConfig is the single live configuration row driving the pipeline.
// Updates are full-replace; the repository enforces the singleton.
type AutomationConfig struct {
	ID                     int            `db:"id" json:"-"`
	Enabled                bool           `db:"enabled" json:"enabled"`
	FetchEnabled           bool           `db:"fetch_enabled" json:"fetch_enabled"`
	ProcessEnabled         bool           `db:"process_enabled" json:"process_enabled"`
	FetchIntervalMinutes   int            `db:"fetch_interval_minutes" json:"fetch_interval_minutes"`
	FetchLookbackHours     int            `db:"fetch_lookback_hours" json:"fetch_lookback_hours"`
	ProcessIntervalMinutes int            `db:"process_interval_minutes" json:"process_interval_minutes"`
	ProcessBatchSize       int            `db:"process_batch_size" json:"process_batch_size"`
	EligibleStatuses       pq.StringArray `db:"eligible_statuses" json:"eligible_statuses"`
	ExcludedStatuses       pq.StringArray `db:"excluded_statuses" json:"excluded_statuses"`
	MaxRetryCount          int            `db:"max_retry_count" json:"max_retry_count"`
	RetryDelaySeconds      pq.Int64Array  `db:"retry_delay_seconds" json:"retry_delay_seconds"`
	StuckThresholdMinutes  int            `db:"stuck_threshold_minutes" json:"stuck_threshold_minutes"`
	LastFetchAt            *time.Time     `db:"last_fetch_at" json:"last_fetch_at,omitempty"`
	LastProcessAt          *time.Time     `db:"last_process_at" json:"last_process_at,omitempty"`
	LastError              *string        `db:"last_error" json:"last_error,omitempty"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// RetryDelay returns the backoff for a given retry attempt index. Counts past
// the end of the ladder clamp to the last rung.
func (c *AutomationConfig) RetryDelay(retryCount int) time.Duration {
	if len(c.RetryDelaySeconds) == 0 {
		return 0
	}
	idx := retryCount
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.RetryDelaySeconds) {
		idx = len(c.RetryDelaySeconds) - 1
	}
	return time.Duration(c.RetryDelaySeconds[idx]) * time.Second
}

// StatusEligible applies the allow-list then the deny-list to a source status.
// An empty allow-list admits every status not explicitly excluded.
func (c *AutomationConfig) StatusEligible(sourceStatus string) bool {
	if len(c.EligibleStatuses) > 0 {
		allowed := false
		for _, s := range c.EligibleStatuses {
			if s == sourceStatus {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	for _, s := range c.ExcludedStatuses {
		if s == sourceStatus {
			return false
		}
	}
	return true
}

// DefaultAutomationConfig seeds the singleton on first boot.
func DefaultAutomationConfig() *AutomationConfig {
	return &AutomationConfig{
		ID:                     1,
		Enabled:                false,
		FetchEnabled:           true,
		ProcessEnabled:         true,
		FetchIntervalMinutes:   30,
		FetchLookbackHours:     24,
		ProcessIntervalMinutes: 10,
		ProcessBatchSize:       20,
		EligibleStatuses:       pq.StringArray{"RETURN_REQUESTED", "CANCEL_REQUESTED"},
		ExcludedStatuses:       pq.StringArray{"RETURN_REJECTED"},
		MaxRetryCount:          3,
		RetryDelaySeconds:      pq.Int64Array{300, 1800, 7200},
		StuckThresholdMinutes:  30,
	}
}
