package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	IDCard  *handler.IDCardHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// submitLimiter throttles submissions; the caller runs its eviction loop.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	submitLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		attempts := studentAPI.Group("/attempts")
		attempts.Use(middleware.NoStore())
		{
			attempts.POST("", handlers.Attempt.StartAttempt)
			attempts.GET("/:paper_id", handlers.Attempt.GetAttempt)
			attempts.DELETE("/:paper_id", handlers.Attempt.DiscardAttempt)
			attempts.PUT("/:paper_id/answers", handlers.Attempt.SaveAnswer)
			attempts.DELETE("/:paper_id/answers/:question_id", handlers.Attempt.ClearAnswer)
			attempts.POST("/:paper_id/flags/:question_id", handlers.Attempt.ToggleFlag)
			attempts.POST("/:paper_id/submit", submitLimiter.Middleware(), handlers.Attempt.SubmitAttempt)
		}

		studentAPI.GET("/last-attempt", middleware.NoStore(), handlers.Attempt.GetLastAttempt)
		studentAPI.POST("/id-card", handlers.IDCard.RenderIDCard)
	}

	// ─── 2. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentJWT(authService))
	{
		ws.GET("/student/attempts/:paper_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/papers/:paper_id/monitor", handlers.Monitor.MonitorPaperSSE)
	}

	return router
}
