package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
)

type executionLogRepository struct {
	BaseRepository
}

func NewExecutionLogRepository(base BaseRepository) repository.ExecutionLogRepository {
	return &executionLogRepository{base}
}

func (r *executionLogRepository) Append(ctx context.Context, entry *model.ExecutionLogEntry) error {
	query := `
		INSERT INTO execution_logs (
			id, run_type, outcome, started_at, completed_at,
			items_total, items_succeeded, items_failed,
			triggered_by, detail, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	entry.ID = uuid.New()
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.RunType,
		entry.Outcome,
		entry.StartedAt,
		entry.CompletedAt,
		entry.ItemsTotal,
		entry.ItemsSucceeded,
		entry.ItemsFailed,
		entry.TriggeredBy,
		entry.Detail,
		entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	return nil
}

func (r *executionLogRepository) ListRecent(ctx context.Context, limit int) ([]*model.ExecutionLogEntry, error) {
	query := `SELECT * FROM execution_logs ORDER BY started_at DESC LIMIT $1`
	var entries []*model.ExecutionLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	return entries, nil
}
