package automation

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/handler"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/scheduler"
	automationService "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/service/automation"
)

type Handler struct {
	svc *automationService.Service
}

func NewHandler(svc *automationService.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auto := r.Group("/automation")
	{
		auto.GET("/config", h.GetConfig)
		auto.PUT("/config", h.ReplaceConfig)
		auto.POST("/fetch", h.TriggerFetch)
		auto.POST("/process", h.TriggerProcess)
		auto.GET("/records", h.ListRecords)
		auto.POST("/records/:id/reprocess", h.Reprocess)
		auto.GET("/logs", h.ListLogs)
		auto.GET("/stats", h.GetStats)
	}
}

func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.svc.GetConfig(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

type replaceConfigRequest struct {
	Enabled                bool     `json:"enabled"`
	FetchEnabled           bool     `json:"fetch_enabled"`
	ProcessEnabled         bool     `json:"process_enabled"`
	FetchIntervalMinutes   int      `json:"fetch_interval_minutes" binding:"required,gt=0"`
	FetchLookbackHours     int      `json:"fetch_lookback_hours" binding:"required,gt=0,lte=168"`
	ProcessIntervalMinutes int      `json:"process_interval_minutes" binding:"required,gt=0"`
	ProcessBatchSize       int      `json:"process_batch_size" binding:"required,gt=0,lte=500"`
	EligibleStatuses       []string `json:"eligible_statuses"`
	ExcludedStatuses       []string `json:"excluded_statuses"`
	MaxRetryCount          int      `json:"max_retry_count" binding:"gte=0"`
	RetryDelaySeconds      []int64  `json:"retry_delay_seconds" binding:"required,min=1,dive,gte=0"`
	StuckThresholdMinutes  int      `json:"stuck_threshold_minutes" binding:"required,gt=0"`
}

func (h *Handler) ReplaceConfig(c *gin.Context) {
	var req replaceConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(bindErrorMessage(err)))
		return
	}

	cfg := &model.AutomationConfig{
		ID:                     1,
		Enabled:                req.Enabled,
		FetchEnabled:           req.FetchEnabled,
		ProcessEnabled:         req.ProcessEnabled,
		FetchIntervalMinutes:   req.FetchIntervalMinutes,
		FetchLookbackHours:     req.FetchLookbackHours,
		ProcessIntervalMinutes: req.ProcessIntervalMinutes,
		ProcessBatchSize:       req.ProcessBatchSize,
		EligibleStatuses:       pq.StringArray(req.EligibleStatuses),
		ExcludedStatuses:       pq.StringArray(req.ExcludedStatuses),
		MaxRetryCount:          req.MaxRetryCount,
		RetryDelaySeconds:      pq.Int64Array(req.RetryDelaySeconds),
		StuckThresholdMinutes:  req.StuckThresholdMinutes,
	}
	if err := h.svc.ReplaceConfig(c.Request.Context(), cfg); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

func (h *Handler) TriggerFetch(c *gin.Context) {
	if err := h.svc.TriggerFetch(c.Request.Context()); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			c.JSON(http.StatusConflict, handler.NewErrorResponse("fetch run already in progress"))
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"triggered": "fetch"}))
}

func (h *Handler) TriggerProcess(c *gin.Context) {
	if err := h.svc.TriggerProcess(c.Request.Context()); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			c.JSON(http.StatusConflict, handler.NewErrorResponse("process run already in progress"))
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"triggered": "process"}))
}

func (h *Handler) Reprocess(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record id"))
		return
	}
	if err := h.svc.Reprocess(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"requeued": id}))
}

func (h *Handler) ListRecords(c *gin.Context) {
	status := model.ProcessingStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.svc.ListRecords(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(records, len(records), limit, offset))
}

func (h *Handler) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.svc.ListLogs(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(logs, len(logs), limit, 0))
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

// bindErrorMessage flattens validator errors into an operator-readable
// message.
func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag()+" validation")
	}
	return strings.Join(parts, "; ")
}

