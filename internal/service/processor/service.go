package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/config"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/fulfillment"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/matcher"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

// Service drains the eligible batch: for each record it locates the matching
// transaction on the fulfillment platform and files the return. Records are
// handled strictly one at a time; the actuator's session is a single shared
// stateful resource and concurrent use risks account lockout.
type Service struct {
	records       repository.ReturnRecordRepository
	configs       repository.AutomationConfigRepository
	logs          repository.ExecutionLogRepository
	actuator      fulfillment.Actuator
	searcher      *matcher.Searcher
	retryAttempts int
	retryDelay    time.Duration
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(
	records repository.ReturnRecordRepository,
	configs repository.AutomationConfigRepository,
	logs repository.ExecutionLogRepository,
	actuator fulfillment.Actuator,
	searcher *matcher.Searcher,
	cfg config.FulfillmentConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		records:       records,
		configs:       configs,
		logs:          logs,
		actuator:      actuator,
		searcher:      searcher,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        log,
		metrics:       m,
		now:           time.Now,
	}
}

// RunResult summarizes one processor invocation.
type RunResult struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Requeued  int64
	Outcome   model.RunOutcome
}

// Run recovers stuck records, selects the eligible batch and attempts each
// record in order. Record-level failures never escape; only record-store
// failures abort the run early.
func (s *Service) Run(ctx context.Context, trigger model.TriggerSource) (*RunResult, error) {
	started := s.now()
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Outcome: model.RunOutcomeSuccess}
	var notes []model.RunItemNote
	var runErr error

	// Crash recovery sweep: anything left in processing beyond the threshold
	// lost its run between the claim and the outcome.
	requeued, err := s.records.RequeueStuck(ctx, time.Duration(cfg.StuckThresholdMinutes)*time.Minute)
	if err != nil {
		runErr = apperrors.Store("stuck record sweep failed", err)
	} else {
		result.Requeued = requeued
		if requeued > 0 {
			s.logger.Warn("requeued records stuck in processing", "count", requeued)
		}
	}

	var batch []*model.ReturnRecord
	if runErr == nil {
		batch, err = s.records.SelectEligible(ctx, s.eligibilityFilter(cfg))
		if err != nil {
			runErr = apperrors.Store("eligible record selection failed", err)
		}
	}

	for _, record := range batch {
		note, fatal := s.processRecord(ctx, record)
		if fatal != nil {
			runErr = fatal
			break
		}
		if note == nil {
			result.Skipped++
			continue
		}
		result.Total++
		notes = append(notes, *note)
		if note.Outcome == "completed" {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	switch {
	case runErr != nil:
		result.Outcome = model.RunOutcomeFailed
	case result.Failed > 0 && result.Succeeded > 0:
		result.Outcome = model.RunOutcomePartial
	case result.Failed > 0:
		result.Outcome = model.RunOutcomeFailed
	}

	s.finishRun(ctx, started, trigger, result, notes, runErr)
	return result, nil
}

func (s *Service) eligibilityFilter(cfg *model.AutomationConfig) repository.EligibilityFilter {
	now := s.now()
	cutoffs := make([]time.Time, 0, len(cfg.RetryDelaySeconds))
	for i := range cfg.RetryDelaySeconds {
		cutoffs = append(cutoffs, now.Add(-cfg.RetryDelay(i)))
	}
	return repository.EligibilityFilter{
		BatchSize:        cfg.ProcessBatchSize,
		EligibleStatuses: cfg.EligibleStatuses,
		ExcludedStatuses: cfg.ExcludedStatuses,
		MaxRetryCount:    cfg.MaxRetryCount,
		RetryCutoffs:     cutoffs,
		Now:              now,
	}
}

// processRecord drives one record through match, duplicate guard and
// actuation. A nil note means the record was skipped because another run
// claimed it first; a non-nil error is a store failure that aborts the run.
func (s *Service) processRecord(ctx context.Context, record *model.ReturnRecord) (*model.RunItemNote, error) {
	// The processing transition is the mutual-exclusion mechanism: it is
	// committed before any external action so a concurrent run cannot
	// double-process the record.
	claimed, err := s.records.MarkProcessing(ctx, record.ID)
	if err != nil {
		return nil, apperrors.Store("failed to claim record", err)
	}
	if !claimed {
		s.logger.Debug("record already claimed by a concurrent run", "receipt_id", record.SourceReceiptID)
		return nil, nil
	}

	cand, err := s.searcher.Search(ctx, s.actuator, record.ProductName, record.RecipientName)
	if err != nil {
		return s.failRecord(ctx, record, err, false), nil
	}
	matchedAt := s.now()

	// Duplicate-action guard: if a prior attempt may have reached the submit
	// step, or the listing already shows a filed return, do not submit again.
	alreadyFiled := cand.ReturnFiled
	if !alreadyFiled && record.NeedsVerification() {
		alreadyFiled, err = s.actuator.VerifyReturned(ctx, cand.TransactionID)
		if err != nil {
			return s.failRecord(ctx, record, err, true), nil
		}
	}

	if !alreadyFiled {
		if err := s.records.MarkSubmitStarted(ctx, record.ID); err != nil {
			return nil, apperrors.Store("failed to persist submit marker", err)
		}
		if err := s.submitWithGuard(ctx, cand, record.ReasonCategory); err != nil {
			return s.failRecord(ctx, record, err, true), nil
		}
	} else {
		s.logger.Info("return already filed externally; completing without resubmit",
			"receipt_id", record.SourceReceiptID, "transaction_id", cand.TransactionID)
	}

	if err := s.records.MarkCompleted(ctx, record.ID, matchedAt, s.now()); err != nil {
		// The external action succeeded but the store write did not. The
		// record stays in processing until the sweep requeues it, and the
		// verification guard will short-circuit that retry to completed.
		s.logger.Error(err, "failed to mark record completed", "receipt_id", record.SourceReceiptID)
		return &model.RunItemNote{
			SourceReceiptID: record.SourceReceiptID,
			Outcome:         "failed",
			ErrorKind:       string(apperrors.KindStore),
			Error:           err.Error(),
		}, nil
	}

	s.metrics.RecordsProcessed.WithLabelValues("completed", "").Inc()
	s.logger.Info("record completed", "receipt_id", record.SourceReceiptID, "transaction_id", cand.TransactionID)
	return &model.RunItemNote{SourceReceiptID: record.SourceReceiptID, Outcome: "completed"}, nil
}

// submitWithGuard retries transient submit failures, but re-verifies external
// state between tries: the first attempt may have gone through even though
// its response was lost, and the action must never be filed twice.
func (s *Service) submitWithGuard(ctx context.Context, cand *matcher.Candidate, reason string) error {
	req := fulfillment.ReturnRequest{Transaction: *cand, ReasonCategory: reason}

	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			filed, verifyErr := s.actuator.VerifyReturned(ctx, cand.TransactionID)
			if verifyErr == nil && filed {
				return nil
			}
			select {
			case <-ctx.Done():
				return apperrors.DuplicateRisk("submit interrupted with unknown outcome", ctx.Err())
			case <-time.After(s.retryDelay):
			}
		}
		err = s.actuator.SubmitReturn(ctx, req)
		if err == nil {
			return nil
		}
		if apperrors.KindOf(err) != apperrors.KindTransient {
			return err
		}
	}
	// Transient retries exhausted. The last attempt's outcome is unknown, so
	// the next attempt must verify before submitting again.
	return apperrors.DuplicateRisk("submit attempts exhausted with unknown outcome", err)
}

func (s *Service) failRecord(ctx context.Context, record *model.ReturnRecord, cause error, submitStarted bool) *model.RunItemNote {
	kind := apperrors.KindOf(cause)
	lastError := fmt.Sprintf("%s: %s", kind, cause.Error())

	if err := s.records.MarkFailed(ctx, record.ID, lastError, submitStarted); err != nil {
		s.logger.Error(err, "failed to mark record failed", "receipt_id", record.SourceReceiptID)
	}

	s.metrics.RecordsProcessed.WithLabelValues("failed", string(kind)).Inc()
	if kind == apperrors.KindSurfaceDrift {
		// Surface drift means the platform changed shape; blanket retries are
		// unlikely to help, so make it loud for operators.
		s.logger.Error(cause, "platform surface drift while processing record",
			"receipt_id", record.SourceReceiptID)
	} else {
		s.logger.Warn("record attempt failed",
			"receipt_id", record.SourceReceiptID, "kind", string(kind), "error", cause.Error())
	}

	return &model.RunItemNote{
		SourceReceiptID: record.SourceReceiptID,
		Outcome:         "failed",
		ErrorKind:       string(kind),
		Error:           cause.Error(),
	}
}

func (s *Service) finishRun(ctx context.Context, started time.Time, trigger model.TriggerSource, result *RunResult, notes []model.RunItemNote, runErr error) {
	completed := s.now()
	s.metrics.RunsTotal.WithLabelValues(string(model.RunTypeProcess), string(result.Outcome)).Inc()
	s.metrics.RunDuration.WithLabelValues(string(model.RunTypeProcess)).Observe(completed.Sub(started).Seconds())

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
		RunType:        model.RunTypeProcess,
		Outcome:        result.Outcome,
		StartedAt:      started,
		CompletedAt:    completed,
		ItemsTotal:     result.Total,
		ItemsSucceeded: result.Succeeded,
		ItemsFailed:    result.Failed,
		TriggeredBy:    trigger,
		Detail:         detail,
		ErrorMessage:   errMsg,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Error(err, "failed to append process execution log")
	}
	if err := s.configs.TouchProcess(ctx, completed, errMsg); err != nil {
		s.logger.Error(err, "failed to update last process timestamp")
	}

	s.logger.Info("processor run finished",
		"outcome", string(result.Outcome),
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"requeued", result.Requeued,
		"trigger", string(trigger))
}
