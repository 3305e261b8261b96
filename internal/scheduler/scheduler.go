package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
)

// ErrRunInProgress is returned when a manual trigger races a run of the same
// type that is already in flight.
var ErrRunInProgress = apperrors.Conflict("a run of this type is already in progress")

// Runner is one of the two pipeline halves the scheduler drives.
type Runner interface {
	Run(ctx context.Context, trigger model.TriggerSource) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, trigger model.TriggerSource) error

func (f RunnerFunc) Run(ctx context.Context, trigger model.TriggerSource) error {
	return f(ctx, trigger)
}

// Scheduler owns the two periodic triggers. It polls the live configuration
// at a coarse resolution and fires a run when its cadence has elapsed, so
// interval and kill-switch changes take effect without a restart. Manual
// triggers share the same in-flight guard as scheduled runs: at most one run
// of each type at any time, enforced in-process rather than via the store.
type Scheduler struct {
	configs        repository.AutomationConfigRepository
	fetch          Runner
	process        Runner
	pollResolution time.Duration
	logger         *logger.Logger

	fetchGuard   chan struct{}
	processGuard chan struct{}

	wg sync.WaitGroup
}

func New(
	configs repository.AutomationConfigRepository,
	fetch Runner,
	process Runner,
	pollResolution time.Duration,
	log *logger.Logger,
) *Scheduler {
	if pollResolution <= 0 {
		pollResolution = 30 * time.Second
	}
	return &Scheduler{
		configs:        configs,
		fetch:          fetch,
		process:        process,
		pollResolution: pollResolution,
		logger:         log,
		fetchGuard:     make(chan struct{}, 1),
		processGuard:   make(chan struct{}, 1),
	}
}

// Start launches both loops. They run until ctx is cancelled; Stop waits for
// any in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, model.RunTypeFetch)
	go s.loop(ctx, model.RunTypeProcess)
	s.logger.Info("scheduler started", "poll_resolution", s.pollResolution.String())
}

// Stop blocks until both loops have exited. Callers cancel the Start context
// first.
func (s *Scheduler) Stop() {
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// TriggerFetch runs the collector out-of-band. Returns ErrRunInProgress when
// a fetch is already running.
func (s *Scheduler) TriggerFetch(ctx context.Context) error {
	return s.runGuarded(ctx, model.RunTypeFetch, model.TriggerManual)
}

// TriggerProcess runs the processor out-of-band. Returns ErrRunInProgress
// when a process run is already running.
func (s *Scheduler) TriggerProcess(ctx context.Context) error {
	return s.runGuarded(ctx, model.RunTypeProcess, model.TriggerManual)
}

func (s *Scheduler) loop(ctx context.Context, runType model.RunType) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg, err := s.configs.Get(ctx)
			if err != nil {
				s.logger.Error(err, "scheduler failed to load configuration")
				continue
			}
			if !s.due(cfg, runType) {
				continue
			}
			if err := s.runGuarded(ctx, runType, model.TriggerScheduler); err != nil && err != ErrRunInProgress {
				s.logger.Error(err, "scheduled run failed", "run_type", string(runType))
			}
		}
	}
}

func (s *Scheduler) due(cfg *model.AutomationConfig, runType model.RunType) bool {
	if !cfg.Enabled {
		return false
	}
	now := time.Now()
	switch runType {
	case model.RunTypeFetch:
		if !cfg.FetchEnabled {
			return false
		}
		if cfg.LastFetchAt == nil {
			return true
		}
		return now.Sub(*cfg.LastFetchAt) >= time.Duration(cfg.FetchIntervalMinutes)*time.Minute
	case model.RunTypeProcess:
		if !cfg.ProcessEnabled {
			return false
		}
		if cfg.LastProcessAt == nil {
			return true
		}
		return now.Sub(*cfg.LastProcessAt) >= time.Duration(cfg.ProcessIntervalMinutes)*time.Minute
	}
	return false
}

func (s *Scheduler) runGuarded(ctx context.Context, runType model.RunType, trigger model.TriggerSource) error {
	guard := s.fetchGuard
	runner := s.fetch
	if runType == model.RunTypeProcess {
		guard = s.processGuard
		runner = s.process
	}

	select {
	case guard <- struct{}{}:
	default:
		return ErrRunInProgress
	}
	defer func() { <-guard }()

	// A panicking run must not take down the scheduler process.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(nil, "run panicked", "run_type", string(runType), "panic", r)
		}
	}()

	s.logger.Debug("run starting", "run_type", string(runType), "trigger", string(trigger))
	return runner.Run(ctx, trigger)
}
