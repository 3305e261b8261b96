package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
)

type automationConfigRepository struct {
	BaseRepository
}

func NewAutomationConfigRepository(base BaseRepository) repository.AutomationConfigRepository {
	return &automationConfigRepository{base}
}

// Get returns the singleton configuration row, seeding the default on first
// access so the pipeline always has a live configuration.
func (r *automationConfigRepository) Get(ctx context.Context) (*model.AutomationConfig, error) {
	query := `SELECT * FROM automation_config WHERE id = 1`
	var cfg model.AutomationConfig
	err := r.db.GetContext(ctx, &cfg, query)
	if errors.Is(err, sql.ErrNoRows) {
		seed := model.DefaultAutomationConfig()
		if err := r.Replace(ctx, seed); err != nil {
			return nil, err
		}
		return seed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation config: %w", err)
	}
	return &cfg, nil
}

// Replace is a full upsert of the singleton row. Partial updates are not
// supported so a lost write can never mix two configurations.
func (r *automationConfigRepository) Replace(ctx context.Context, cfg *model.AutomationConfig) error {
	query := `
		INSERT INTO automation_config (
			id, enabled, fetch_enabled, process_enabled,
			fetch_interval_minutes, fetch_lookback_hours,
			process_interval_minutes, process_batch_size,
			eligible_statuses, excluded_statuses,
			max_retry_count, retry_delay_seconds, stuck_threshold_minutes,
			updated_at
		) VALUES (
			1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			fetch_enabled = EXCLUDED.fetch_enabled,
			process_enabled = EXCLUDED.process_enabled,
			fetch_interval_minutes = EXCLUDED.fetch_interval_minutes,
			fetch_lookback_hours = EXCLUDED.fetch_lookback_hours,
			process_interval_minutes = EXCLUDED.process_interval_minutes,
			process_batch_size = EXCLUDED.process_batch_size,
			eligible_statuses = EXCLUDED.eligible_statuses,
			excluded_statuses = EXCLUDED.excluded_statuses,
			max_retry_count = EXCLUDED.max_retry_count,
			retry_delay_seconds = EXCLUDED.retry_delay_seconds,
			stuck_threshold_minutes = EXCLUDED.stuck_threshold_minutes,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		cfg.Enabled,
		cfg.FetchEnabled,
		cfg.ProcessEnabled,
		cfg.FetchIntervalMinutes,
		cfg.FetchLookbackHours,
		cfg.ProcessIntervalMinutes,
		cfg.ProcessBatchSize,
		cfg.EligibleStatuses,
		cfg.ExcludedStatuses,
		cfg.MaxRetryCount,
		cfg.RetryDelaySeconds,
		cfg.StuckThresholdMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to replace automation config: %w", err)
	}
	return nil
}

func (r *automationConfigRepository) TouchFetch(ctx context.Context, at time.Time, lastError *string) error {
	query := `UPDATE automation_config SET last_fetch_at = $1, last_error = $2, updated_at = NOW() WHERE id = 1`
	if _, err := r.db.ExecContext(ctx, query, at, lastError); err != nil {
		return fmt.Errorf("failed to record fetch run: %w", err)
	}
	return nil
}

func (r *automationConfigRepository) TouchProcess(ctx context.Context, at time.Time, lastError *string) error {
	query := `UPDATE automation_config SET last_process_at = $1, last_error = $2, updated_at = NOW() WHERE id = 1`
	if _, err := r.db.ExecContext(ctx, query, at, lastError); err != nil {
		return fmt.Errorf("failed to record process run: %w", err)
	}
	return nil
}
