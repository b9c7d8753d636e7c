package httpapi

import (
	"log"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds the middleware settings.
type RouterConfig struct {
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
	Logger         *log.Logger
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logging(cfg.Logger))
	r.Use(CORS(cfg.CORSOrigins))

	r.GET("/", h.Index)
	r.GET("/health", h.HealthCheck)

	apiGroup := r.Group("/api")
	if cfg.RateLimitRPS > 0 {
		apiGroup.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware())
	}
	{
		apiGroup.POST("/convert", h.Convert)
		apiGroup.GET("/job", h.GetJob)
		apiGroup.DELETE("/job", h.CancelJob)
		apiGroup.GET("/jobs/:id", h.GetJobByID)

		apiGroup.GET("/ws", h.WebSocket)

		apiGroup.GET("/errors", h.ListErrors)
		apiGroup.DELETE("/errors", h.ClearErrors)

		apiGroup.GET("/format", h.FormatDuration)
	}

	r.NoRoute(NotFound)
	return r
}
