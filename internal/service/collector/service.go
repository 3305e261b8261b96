package collector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/config"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/marketplace"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/retry"
)

// Service polls the source marketplace for return/cancellation events and
// upserts them into the record store.
type Service struct {
	client        marketplace.Client
	records       repository.ReturnRecordRepository
	configs       repository.AutomationConfigRepository
	logs          repository.ExecutionLogRepository
	retryAttempts int
	retryDelay    time.Duration
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(
	client marketplace.Client,
	records repository.ReturnRecordRepository,
	configs repository.AutomationConfigRepository,
	logs repository.ExecutionLogRepository,
	cfg config.MarketplaceConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		client:        client,
		records:       records,
		configs:       configs,
		logs:          logs,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        log,
		metrics:       m,
		now:           time.Now,
	}
}

// RunResult summarizes one collector invocation.
type RunResult struct {
	Total    int
	Inserted int
	Updated  int
	Outcome  model.RunOutcome
}

// Run fetches the configured lookback window and upserts every event. The
// window is split into marketplace-sized sub-windows; records upserted from
// an earlier sub-window survive a later sub-window failure, and pages fetched
// before a mid-window failure are still committed. All failures are absorbed
// into the execution log entry; Run itself only returns an error when the
// record store is unusable.
func (s *Service) Run(ctx context.Context, trigger model.TriggerSource) (*RunResult, error) {
	started := s.now()
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, err
	}

	to := started
	from := to.Add(-time.Duration(cfg.FetchLookbackHours) * time.Hour)

	result := &RunResult{Outcome: model.RunOutcomeSuccess}
	var notes []model.RunItemNote
	var runErr error

	for _, window := range splitWindow(from, to, s.client.MaxWindow()) {
		var events []marketplace.ReturnEvent
		err := retry.Do(ctx, s.retryAttempts, s.retryDelay, func() error {
			var fetchErr error
			events, fetchErr = s.client.FetchReturnEvents(ctx, window.from, window.to, marketplace.FetchOptions{})
			return fetchErr
		})
		if err != nil {
			// Pages fetched before the failure are still in events; commit
			// them below so a mid-pagination failure loses nothing.
			runErr = err
			s.logger.Error(err, "marketplace fetch failed for sub-window",
				"from", window.from.Format(time.RFC3339), "to", window.to.Format(time.RFC3339))
		}

		for _, event := range events {
			result.Total++
			record := toRecord(event)
			upsert, err := s.records.Upsert(ctx, record)
			if err != nil {
				runErr = err
				s.logger.Error(err, "failed to upsert return record", "receipt_id", event.ReceiptID)
				break
			}
			if upsert.Inserted {
				result.Inserted++
				s.metrics.RecordsIngested.WithLabelValues("inserted").Inc()
			} else {
				result.Updated++
				s.metrics.RecordsIngested.WithLabelValues("updated").Inc()
			}
			notes = append(notes, model.RunItemNote{
				SourceReceiptID: event.ReceiptID,
				Outcome:         upsertOutcome(upsert.Inserted),
			})
		}
		if runErr != nil {
			break
		}
	}

	if runErr != nil {
		if result.Total > 0 {
			result.Outcome = model.RunOutcomePartial
		} else {
			result.Outcome = model.RunOutcomeFailed
		}
	}

	s.finishRun(ctx, started, trigger, result, notes, runErr)
	return result, nil
}

func (s *Service) finishRun(ctx context.Context, started time.Time, trigger model.TriggerSource, result *RunResult, notes []model.RunItemNote, runErr error) {
	completed := s.now()
	s.metrics.RunsTotal.WithLabelValues(string(model.RunTypeFetch), string(result.Outcome)).Inc()
	s.metrics.RunDuration.WithLabelValues(string(model.RunTypeFetch)).Observe(completed.Sub(started).Seconds())

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	detail, err := json.Marshal(notes)
	if err != nil {
		detail = nil
	}
	entry := &model.ExecutionLogEntry{
		RunType:        model.RunTypeFetch,
		Outcome:        result.Outcome,
		StartedAt:      started,
		CompletedAt:    completed,
		ItemsTotal:     result.Total,
		ItemsSucceeded: result.Inserted + result.Updated,
		ItemsFailed:    result.Total - result.Inserted - result.Updated,
		TriggeredBy:    trigger,
		Detail:         detail,
		ErrorMessage:   errMsg,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Error(err, "failed to append fetch execution log")
	}
	if err := s.configs.TouchFetch(ctx, completed, errMsg); err != nil {
		s.logger.Error(err, "failed to update last fetch timestamp")
	}

	s.logger.Info("collector run finished",
		"outcome", string(result.Outcome),
		"total", result.Total,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"trigger", string(trigger))
}

type window struct {
	from time.Time
	to   time.Time
}

// splitWindow breaks [from, to] into sub-windows no wider than max, in
// chronological order.
func splitWindow(from, to time.Time, max time.Duration) []window {
	if max <= 0 || !from.Before(to) {
		return []window{{from: from, to: to}}
	}
	var windows []window
	for cursor := from; cursor.Before(to); cursor = cursor.Add(max) {
		end := cursor.Add(max)
		if end.After(to) {
			end = to
		}
		windows = append(windows, window{from: cursor, to: end})
	}
	return windows
}

func toRecord(event marketplace.ReturnEvent) *model.ReturnRecord {
	eventType := model.EventTypeReturn
	if event.ClaimType == marketplace.ClaimTypeCancel {
		eventType = model.EventTypeCancel
	}
	return &model.ReturnRecord{
		SourceReceiptID: event.ReceiptID,
		SourceOrderID:   event.OrderID,
		ProductName:     event.ProductName,
		RecipientName:   event.RecipientName,
		RecipientPhone:  event.RecipientPhone,
		EventType:       eventType,
		SourceStatus:    event.ClaimStatus,
		ReasonCategory:  event.ReasonCategory,
	}
}

func upsertOutcome(inserted bool) string {
	if inserted {
		return "inserted"
	}
	return "updated"
}
