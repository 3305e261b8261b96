package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/middleware"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/scheduler"
	automationService "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/service/automation"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

var testMetrics = metrics.New("automation_handler_test")

type fakeRecordRepo struct {
	repository.ReturnRecordRepository

	records map[uuid.UUID]*model.ReturnRecord
}

func (f *fakeRecordRepo) Get(_ context.Context, id uuid.UUID) (*model.ReturnRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, apperrors.NotFound("return record not found")
	}
	return rec, nil
}

func (f *fakeRecordRepo) ForceRequeue(context.Context, uuid.UUID) error { return nil }

func (f *fakeRecordRepo) List(context.Context, model.ProcessingStatus, int, int) ([]*model.ReturnRecord, error) {
	return nil, nil
}

func (f *fakeRecordRepo) CountByStatus(context.Context) (*model.StatusCounts, error) {
	return &model.StatusCounts{Pending: 1}, nil
}

type fakeConfigRepo struct {
	cfg *model.AutomationConfig
}

func (f *fakeConfigRepo) Get(context.Context) (*model.AutomationConfig, error) { return f.cfg, nil }
func (f *fakeConfigRepo) Replace(_ context.Context, cfg *model.AutomationConfig) error {
	f.cfg = cfg
	return nil
}
func (f *fakeConfigRepo) TouchFetch(context.Context, time.Time, *string) error   { return nil }
func (f *fakeConfigRepo) TouchProcess(context.Context, time.Time, *string) error { return nil }

type fakeLogRepo struct{}

func (fakeLogRepo) Append(context.Context, *model.ExecutionLogEntry) error { return nil }
func (fakeLogRepo) ListRecent(context.Context, int) ([]*model.ExecutionLogEntry, error) {
	return nil, nil
}

type fakeTrigger struct {
	fetchErr error
}

func (f *fakeTrigger) TriggerFetch(context.Context) error   { return f.fetchErr }
func (f *fakeTrigger) TriggerProcess(context.Context) error { return nil }

func newTestRouter(records *fakeRecordRepo, configs *fakeConfigRepo, trigger *fakeTrigger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := automationService.NewService(records, configs, fakeLogRepo{}, trigger,
		logger.NewLogger(nil), testMetrics)

	engine := gin.New()
	engine.Use(middleware.ErrorHandler())
	NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func doRequest(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestGetConfig(t *testing.T) {
	engine := newTestRouter(&fakeRecordRepo{}, &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}, &fakeTrigger{})

	w := doRequest(t, engine, http.MethodGet, "/api/v1/automation/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string                  `json:"status"`
		Data   *model.AutomationConfig `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.False(t, resp.Data.Enabled)
}

func TestReplaceConfig(t *testing.T) {
	configs := &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}
	engine := newTestRouter(&fakeRecordRepo{}, configs, &fakeTrigger{})

	body := `{
		"enabled": true,
		"fetch_enabled": true,
		"process_enabled": true,
		"fetch_interval_minutes": 15,
		"fetch_lookback_hours": 24,
		"process_interval_minutes": 5,
		"process_batch_size": 10,
		"eligible_statuses": ["RETURN_REQUESTED"],
		"max_retry_count": 3,
		"retry_delay_seconds": [60, 300],
		"stuck_threshold_minutes": 20
	}`
	w := doRequest(t, engine, http.MethodPut, "/api/v1/automation/config", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.True(t, configs.cfg.Enabled)
	assert.Equal(t, 15, configs.cfg.FetchIntervalMinutes)
}

func TestReplaceConfigRejectsBadPayload(t *testing.T) {
	engine := newTestRouter(&fakeRecordRepo{}, &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}, &fakeTrigger{})

	// Missing required fields and an empty retry ladder.
	w := doRequest(t, engine, http.MethodPut, "/api/v1/automation/config",
		`{"enabled": true, "retry_delay_seconds": []}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, resp.Message)
}

func TestTriggerFetchConflict(t *testing.T) {
	engine := newTestRouter(&fakeRecordRepo{}, &fakeConfigRepo{cfg: model.DefaultAutomationConfig()},
		&fakeTrigger{fetchErr: scheduler.ErrRunInProgress})

	w := doRequest(t, engine, http.MethodPost, "/api/v1/automation/fetch", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerFetchOK(t *testing.T) {
	engine := newTestRouter(&fakeRecordRepo{}, &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}, &fakeTrigger{})

	w := doRequest(t, engine, http.MethodPost, "/api/v1/automation/fetch", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReprocess(t *testing.T) {
	rec := &model.ReturnRecord{ID: uuid.New(), ProcessingStatus: model.ProcessingStatusFailed}
	records := &fakeRecordRepo{records: map[uuid.UUID]*model.ReturnRecord{rec.ID: rec}}
	engine := newTestRouter(records, &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}, &fakeTrigger{})

	w := doRequest(t, engine, http.MethodPost, "/api/v1/automation/records/"+rec.ID.String()+"/reprocess", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, engine, http.MethodPost, "/api/v1/automation/records/not-a-uuid/reprocess", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, engine, http.MethodPost, "/api/v1/automation/records/"+uuid.NewString()+"/reprocess", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRecordsEnvelope(t *testing.T) {
	engine := newTestRouter(&fakeRecordRepo{}, &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}, &fakeTrigger{})

	w := doRequest(t, engine, http.MethodGet, "/api/v1/automation/records?limit=10&offset=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
		Meta   struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 10, resp.Meta.Limit)
	assert.Equal(t, 5, resp.Meta.Offset)
}

func TestGetStats(t *testing.T) {
	engine := newTestRouter(&fakeRecordRepo{}, &fakeConfigRepo{cfg: model.DefaultAutomationConfig()}, &fakeTrigger{})

	w := doRequest(t, engine, http.MethodGet, "/api/v1/automation/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data automationService.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.Counts.Pending)
}
