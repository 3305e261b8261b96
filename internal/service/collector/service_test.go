package collector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/config"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/marketplace"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

var testMetrics = metrics.New("collector_test")

type fakeClient struct {
	maxWindow time.Duration
	events    []marketplace.ReturnEvent
	errs      []error
	partial   []marketplace.ReturnEvent
	calls     []window
}

func (f *fakeClient) MaxWindow() time.Duration { return f.maxWindow }

func (f *fakeClient) FetchReturnEvents(_ context.Context, from, to time.Time, _ marketplace.FetchOptions) ([]marketplace.ReturnEvent, error) {
	call := len(f.calls)
	f.calls = append(f.calls, window{from: from, to: to})
	if call < len(f.errs) && f.errs[call] != nil {
		// Pages fetched before the failing one travel with the error.
		return f.partial, f.errs[call]
	}
	return f.events, nil
}

type fakeRecordRepo struct {
	repository.ReturnRecordRepository

	existing  map[string]bool
	upserted  []*model.ReturnRecord
	upsertErr error
}

func (f *fakeRecordRepo) Upsert(_ context.Context, record *model.ReturnRecord) (repository.UpsertResult, error) {
	if f.upsertErr != nil {
		return repository.UpsertResult{}, f.upsertErr
	}
	f.upserted = append(f.upserted, record)
	inserted := !f.existing[record.SourceReceiptID]
	f.existing[record.SourceReceiptID] = true
	return repository.UpsertResult{Inserted: inserted}, nil
}

type fakeConfigRepo struct {
	cfg          *model.AutomationConfig
	fetchTouch   *time.Time
	fetchError   *string
	processTouch *time.Time
}

func (f *fakeConfigRepo) Get(context.Context) (*model.AutomationConfig, error) { return f.cfg, nil }
func (f *fakeConfigRepo) Replace(context.Context, *model.AutomationConfig) error {
	return nil
}
func (f *fakeConfigRepo) TouchFetch(_ context.Context, at time.Time, lastError *string) error {
	f.fetchTouch = &at
	f.fetchError = lastError
	return nil
}
func (f *fakeConfigRepo) TouchProcess(_ context.Context, at time.Time, _ *string) error {
	f.processTouch = &at
	return nil
}

type fakeLogRepo struct {
	entries []*model.ExecutionLogEntry
}

func (f *fakeLogRepo) Append(_ context.Context, entry *model.ExecutionLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}
func (f *fakeLogRepo) ListRecent(context.Context, int) ([]*model.ExecutionLogEntry, error) {
	return f.entries, nil
}

func event(receiptID string) marketplace.ReturnEvent {
	return marketplace.ReturnEvent{
		ReceiptID:     receiptID,
		OrderID:       "order-" + receiptID,
		ProductName:   "Phone Case",
		RecipientName: "Kim Minsoo",
		ClaimType:     marketplace.ClaimTypeReturn,
		ClaimStatus:   "RETURN_REQUESTED",
	}
}

func newTestService(client *fakeClient, records *fakeRecordRepo, configs *fakeConfigRepo, logs *fakeLogRepo) *Service {
	svc := NewService(client, records, configs, logs,
		config.MarketplaceConfig{RetryAttempts: 3, RetryDelay: 0},
		logger.NewLogger(nil), testMetrics)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	return svc
}

func TestRunCountsInsertedAndUpdated(t *testing.T) {
	client := &fakeClient{
		maxWindow: 48 * time.Hour,
		events: []marketplace.ReturnEvent{
			event("r1"), event("r2"), event("r3"), event("r4"), event("r5"),
		},
	}
	records := &fakeRecordRepo{existing: map[string]bool{"r4": true, "r5": true}}
	configs := &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}
	logs := &fakeLogRepo{}

	svc := newTestService(client, records, configs, logs)
	result, err := svc.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, model.RunOutcomeSuccess, result.Outcome)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, model.RunTypeFetch, entry.RunType)
	assert.Equal(t, 5, entry.ItemsTotal)
	assert.Equal(t, 5, entry.ItemsSucceeded)
	assert.Equal(t, 0, entry.ItemsFailed)
	assert.Equal(t, model.TriggerManual, entry.TriggeredBy)
	assert.Nil(t, entry.ErrorMessage)
	require.NotNil(t, configs.fetchTouch)
	assert.Nil(t, configs.fetchError)

	var notes []model.RunItemNote
	require.NoError(t, json.Unmarshal(entry.Detail, &notes))
	assert.Len(t, notes, 5)
	assert.Equal(t, "inserted", notes[0].Outcome)
	assert.Equal(t, "updated", notes[3].Outcome)
}

func TestRunSplitsLookbackIntoSubWindows(t *testing.T) {
	cfg := model.DefaultAutomationConfig()
	cfg.FetchLookbackHours = 72

	client := &fakeClient{maxWindow: 24 * time.Hour}
	records := &fakeRecordRepo{existing: map[string]bool{}}
	configs := &fakeConfigRepo{cfg: cfg}
	logs := &fakeLogRepo{}

	svc := newTestService(client, records, configs, logs)
	_, err := svc.Run(context.Background(), model.TriggerScheduler)
	require.NoError(t, err)

	require.Len(t, client.calls, 3)
	for _, call := range client.calls {
		assert.LessOrEqual(t, call.to.Sub(call.from), 24*time.Hour)
	}
	assert.True(t, client.calls[0].from.Before(client.calls[1].from), "sub-windows walk forward")
	assert.Equal(t, client.calls[0].to, client.calls[1].from, "sub-windows are contiguous")
}

func TestRunRetriesTransientFetch(t *testing.T) {
	client := &fakeClient{
		maxWindow: 48 * time.Hour,
		events:    []marketplace.ReturnEvent{event("r1")},
		errs: []error{
			apperrors.Transient("timeout", nil),
			apperrors.Transient("timeout", nil),
		},
	}
	records := &fakeRecordRepo{existing: map[string]bool{}}
	configs := &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}
	logs := &fakeLogRepo{}

	svc := newTestService(client, records, configs, logs)
	result, err := svc.Run(context.Background(), model.TriggerScheduler)
	require.NoError(t, err)

	assert.Len(t, client.calls, 3, "two transient failures then success")
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, model.RunOutcomeSuccess, result.Outcome)
}

func TestRunLaterSubWindowFailureIsPartial(t *testing.T) {
	cfg := model.DefaultAutomationConfig()
	cfg.FetchLookbackHours = 48

	client := &fakeClient{
		maxWindow: 24 * time.Hour,
		events:    []marketplace.ReturnEvent{event("r1")},
		errs: []error{
			nil,
			apperrors.Auth("token rejected", nil),
		},
	}
	records := &fakeRecordRepo{existing: map[string]bool{}}
	configs := &fakeConfigRepo{cfg: cfg}
	logs := &fakeLogRepo{}

	svc := newTestService(client, records, configs, logs)
	result, err := svc.Run(context.Background(), model.TriggerScheduler)
	require.NoError(t, err, "fetch failures are absorbed into the log entry")

	assert.Equal(t, model.RunOutcomePartial, result.Outcome)
	assert.Equal(t, 1, result.Inserted, "first sub-window's records survive")
	require.Len(t, logs.entries, 1)
	require.NotNil(t, logs.entries[0].ErrorMessage)
	require.NotNil(t, configs.fetchError)
}

func TestRunCommitsPagesFetchedBeforeFailure(t *testing.T) {
	transient := apperrors.Transient("marketplace returned status 500", nil)
	client := &fakeClient{
		maxWindow: 48 * time.Hour,
		errs:      []error{transient, transient, transient},
		partial:   []marketplace.ReturnEvent{event("r1"), event("r2")},
	}
	records := &fakeRecordRepo{existing: map[string]bool{}}
	configs := &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}
	logs := &fakeLogRepo{}

	svc := newTestService(client, records, configs, logs)
	result, err := svc.Run(context.Background(), model.TriggerScheduler)
	require.NoError(t, err, "fetch failures are absorbed into the log entry")

	assert.Len(t, client.calls, 3, "immediate retries exhausted")
	assert.Equal(t, model.RunOutcomePartial, result.Outcome)
	assert.Equal(t, 2, result.Inserted, "pages fetched before the failure are committed")
	require.Len(t, records.upserted, 2)
	assert.Equal(t, "r1", records.upserted[0].SourceReceiptID)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, 2, logs.entries[0].ItemsTotal)
	require.NotNil(t, logs.entries[0].ErrorMessage)
}

func TestRunNoEventsStillLogs(t *testing.T) {
	client := &fakeClient{maxWindow: 48 * time.Hour}
	records := &fakeRecordRepo{existing: map[string]bool{}}
	configs := &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}
	logs := &fakeLogRepo{}

	svc := newTestService(client, records, configs, logs)
	result, err := svc.Run(context.Background(), model.TriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Total)
	assert.Equal(t, model.RunOutcomeSuccess, result.Outcome)
	require.Len(t, logs.entries, 1)
}

func TestRunEveryFetchFailedIsFailed(t *testing.T) {
	client := &fakeClient{
		maxWindow: 48 * time.Hour,
		errs:      []error{apperrors.Auth("token rejected", nil)},
	}
	records := &fakeRecordRepo{existing: map[string]bool{}}
	configs := &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}
	logs := &fakeLogRepo{}

	svc := newTestService(client, records, configs, logs)
	result, err := svc.Run(context.Background(), model.TriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, model.RunOutcomeFailed, result.Outcome)
	assert.Equal(t, 0, result.Total)
}

func TestSplitWindowEdges(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	whole := splitWindow(from, from.Add(10*time.Hour), 24*time.Hour)
	require.Len(t, whole, 1)
	assert.Equal(t, from, whole[0].from)

	uneven := splitWindow(from, from.Add(50*time.Hour), 24*time.Hour)
	require.Len(t, uneven, 3)
	assert.Equal(t, 2*time.Hour, uneven[2].to.Sub(uneven[2].from))

	unbounded := splitWindow(from, from.Add(10*time.Hour), 0)
	require.Len(t, unbounded, 1)
}

func TestToRecordMapsEventType(t *testing.T) {
	e := event("r1")
	e.ClaimType = marketplace.ClaimTypeCancel

	rec := toRecord(e)
	assert.Equal(t, model.EventTypeCancel, rec.EventType)
	assert.Equal(t, "r1", rec.SourceReceiptID)
	assert.Equal(t, uuid.Nil, rec.ID, "id assignment belongs to the store")
}
