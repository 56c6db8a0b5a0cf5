package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/session"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
)

// MonitorHandler streams live attempt activity of a paper to proctors.
// Events come through Redis so every gateway replica's attempts are seen;
// the periodic overview covers this replica only.
type MonitorHandler struct {
	rdb      *redis.Client
	attempts *service.AttemptService
	log      zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, attempts *service.AttemptService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		attempts: attempts,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorPaperSSE godoc
// GET /api/v1/admin/papers/:paper_id/monitor
func (h *MonitorHandler) MonitorPaperSSE(c *gin.Context) {
	paperID := c.Param("paper_id")
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "paper_id": paperID, "attempts": h.attempts.Overview(paperID)})
	c.Writer.Flush()

	events := notify.Listen[service.AttemptEvent](reqCtx, h.rdb, config.CacheKey.AttemptEventsChannel(paperID), h.log)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("paper_id", paperID).Msg("Proctor attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("paper_id", paperID).Msg("Proctor detached from live monitor SSE")
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			// Ticks are summarized by the refresh instead.
			if ev.Type == session.EventTick {
				continue
			}
			c.SSEvent("message", gin.H{"type": "event", "event": ev})
			c.Writer.Flush()

		case <-refreshTicker.C:
			c.SSEvent("message", gin.H{"type": "refresh", "attempts": h.attempts.Overview(paperID)})
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}
