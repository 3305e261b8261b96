package automation

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

const statsCacheKey = "automation:stats"

// Trigger starts a pipeline run out-of-band from the scheduler.
type Trigger interface {
	TriggerFetch(ctx context.Context) error
	TriggerProcess(ctx context.Context) error
}

// Service is the operator-facing control surface over the pipeline.
type Service struct {
	records    repository.ReturnRecordRepository
	configs    repository.AutomationConfigRepository
	logs       repository.ExecutionLogRepository
	trigger    Trigger
	statsCache *gocache.Cache
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(
	records repository.ReturnRecordRepository,
	configs repository.AutomationConfigRepository,
	logs repository.ExecutionLogRepository,
	trigger Trigger,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		records:    records,
		configs:    configs,
		logs:       logs,
		trigger:    trigger,
		statsCache: gocache.New(10*time.Second, time.Minute),
		logger:     log,
		metrics:    m,
	}
}

func (s *Service) GetConfig(ctx context.Context) (*model.AutomationConfig, error) {
	return s.configs.Get(ctx)
}

// ReplaceConfig swaps the live configuration wholesale. There is no partial
// update path, so concurrent writers cannot corrupt the row.
func (s *Service) ReplaceConfig(ctx context.Context, cfg *model.AutomationConfig) error {
	if cfg.MaxRetryCount < 0 {
		return apperrors.BadRequest("max_retry_count must not be negative", nil)
	}
	if len(cfg.RetryDelaySeconds) == 0 {
		return apperrors.BadRequest("retry_delay_seconds must not be empty", nil)
	}
	for _, d := range cfg.RetryDelaySeconds {
		if d < 0 {
			return apperrors.BadRequest("retry delays must not be negative", nil)
		}
	}
	if err := s.configs.Replace(ctx, cfg); err != nil {
		return err
	}
	s.logger.Info("automation config replaced",
		"enabled", cfg.Enabled,
		"fetch_interval_minutes", cfg.FetchIntervalMinutes,
		"process_interval_minutes", cfg.ProcessIntervalMinutes)
	return nil
}

func (s *Service) TriggerFetch(ctx context.Context) error {
	return s.trigger.TriggerFetch(ctx)
}

func (s *Service) TriggerProcess(ctx context.Context) error {
	return s.trigger.TriggerProcess(ctx)
}

// Reprocess forces a terminal-failed record back into the pipeline, bypassing
// the max-retry gate exactly once.
func (s *Service) Reprocess(ctx context.Context, id uuid.UUID) error {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return apperrors.New(apperrors.KindNotFound, "return record not found", err)
	}
	if record.ProcessingStatus != model.ProcessingStatusFailed {
		return apperrors.BadRequest("only failed records can be reprocessed", nil)
	}
	if err := s.records.ForceRequeue(ctx, id); err != nil {
		return err
	}
	s.logger.Info("record force-requeued by operator", "receipt_id", record.SourceReceiptID)
	return nil
}

func (s *Service) ListRecords(ctx context.Context, status model.ProcessingStatus, limit, offset int) ([]*model.ReturnRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.records.List(ctx, status, limit, offset)
}

func (s *Service) ListLogs(ctx context.Context, limit int) ([]*model.ExecutionLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.logs.ListRecent(ctx, limit)
}

// Stats is the dashboard aggregate: counts by status plus recent runs.
type Stats struct {
	Counts     *model.StatusCounts        `json:"counts"`
	RecentRuns []*model.ExecutionLogEntry `json:"recent_runs"`
}

// GetStats serves cached aggregates; the counts are observational and a few
// seconds of staleness is acceptable.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	if cached, ok := s.statsCache.Get(statsCacheKey); ok {
		return cached.(*Stats), nil
	}

	counts, err := s.records.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := s.logs.ListRecent(ctx, 10)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordsByStatus.WithLabelValues("pending").Set(float64(counts.Pending))
	s.metrics.RecordsByStatus.WithLabelValues("processing").Set(float64(counts.Processing))
	s.metrics.RecordsByStatus.WithLabelValues("completed").Set(float64(counts.Completed))
	s.metrics.RecordsByStatus.WithLabelValues("failed").Set(float64(counts.Failed))

	stats := &Stats{Counts: counts, RecentRuns: runs}
	s.statsCache.Set(statsCacheKey, stats, gocache.DefaultExpiration)
	return stats, nil
}
