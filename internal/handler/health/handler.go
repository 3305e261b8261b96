package health

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RecordStore is the readiness view of the record database.
type RecordStore interface {
	PingContext(ctx context.Context) error
}

// SessionStore is the readiness view of the fulfillment session cache.
type SessionStore interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type Handler struct {
	records  RecordStore
	sessions SessionStore
}

func NewHandler(records RecordStore, sessions SessionStore) *Handler {
	return &Handler{
		records:  records,
		sessions: sessions,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "up", "service": "return-automation"})
}

// ReadinessCheck reports per-dependency state. The session cache degrades
// gracefully (the fulfillment client re-authenticates without it), so only
// the record store gates readiness.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	checks := gin.H{"record_store": "ok", "session_store": "ok"}
	status := http.StatusOK

	if err := h.records.PingContext(c.Request.Context()); err != nil {
		checks["record_store"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if h.sessions == nil {
		checks["session_store"] = "disabled"
	} else if err := h.sessions.Ping(c.Request.Context()).Err(); err != nil {
		checks["session_store"] = "unreachable"
	}

	state := "up"
	if status != http.StatusOK {
		state = "down"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
