package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

const pingTimeout = 2 * time.Second

// SystemHandler reports gateway health.
type SystemHandler struct {
	rdb       *redis.Client
	attempts  *service.AttemptService
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, attempts *service.AttemptService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		attempts:  attempts,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status         string `json:"status"`
	Redis          string `json:"redis"`
	Uptime         string `json:"uptime"`
	ActiveAttempts int    `json:"active_attempts"`
	Goroutines     int    `json:"goroutines"`
	HeapAlloc      uint64 `json:"heap_alloc"`
	GoVersion      string `json:"go_version"`
}

// Health godoc
// GET /health
// 503 when Redis is unreachable: last attempts and the monitor relay need it.
func (h *SystemHandler) Health(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	report := healthReport{
		Status:         "ok",
		Redis:          "ok",
		Uptime:         time.Since(h.startTime).Truncate(time.Second).String(),
		ActiveAttempts: h.attempts.ActiveCount(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAlloc:      mem.HeapAlloc,
		GoVersion:      runtime.Version(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Health check: Redis unreachable")
		report.Status = "degraded"
		report.Redis = err.Error()
		response.Success(c, http.StatusServiceUnavailable, report)
		return
	}

	response.Success(c, http.StatusOK, report)
}
