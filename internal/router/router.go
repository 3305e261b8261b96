package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/middleware"
)

// Handler registers a route group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	JWTSecret    string
	RateLimit    middleware.RateLimiterConfig
	AllowOrigins []string
	MaxBodyBytes int64
}

type Router struct {
	engine *gin.Engine
}

// New assembles the gin engine: recovery, request id, logging and error
// mapping on everything; rate limiting and bearer auth on the control
// surface; health and metrics left open for probes and scrapers.
func New(cfg Config, healthH Handler, automationH Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(cfg.AllowOrigins),
		middleware.BodyLimit(cfg.MaxBodyBytes),
		middleware.ErrorHandler(),
	)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	healthH.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(
		middleware.RateLimit(cfg.RateLimit),
		middleware.Auth(cfg.JWTSecret),
	)
	automationH.RegisterRoutes(protected)

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
