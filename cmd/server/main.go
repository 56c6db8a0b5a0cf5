package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/idcard"
	"github.com/stemsi/exstem-attempt/internal/lmsclient"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/store"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("lms", cfg.LMSBaseURL).
		Msg("Starting ExStem attempt gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Collaborators ──────────────────────────────────────
	clk := clock.New()
	lms := lmsclient.New(cfg.LMSBaseURL, cfg.LMSTimeout, log)
	lastAttempts := store.NewRedisStore(rdb)
	bus := notify.NewBus[service.AttemptEvent]()
	defer bus.Close()

	renderer, err := idcard.NewTemplateRenderer(cfg.IDCardTemplate, cfg.IDCardTitle)
	if err != nil {
		log.Fatal().Err(err).Str("template", cfg.IDCardTemplate).Msg("Failed to load ID card template")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	attemptService := service.NewAttemptService(lms, lastAttempts, bus, clk, cfg.SessionIdle, log)
	idCardService := service.NewIDCardService(lms, renderer, cfg.MaxUploadBytes, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, time.Minute, clk).KeyByStudent()

	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(attemptService, log),
		IDCard:  handler.NewIDCardHandler(idCardService, cfg.MaxUploadBytes, log),
		WS:      handler.NewWSHandler(attemptService, submitLimiter, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(rdb, attemptService, log),
		System:  handler.NewSystemHandler(rdb, attemptService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	relay := notify.NewRedisRelay(rdb, bus, func(ev service.AttemptEvent) string {
		return config.CacheKey.AttemptEventsChannel(ev.PaperID)
	}, service.RelayedToProctors, log)

	go relay.Start(workerCtx)
	go attemptService.StartReaper(workerCtx)
	go submitLimiter.Run(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, submitLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop every countdown; in-flight submissions finish on their own.
	attemptService.Shutdown()

	// 3. Stop the relay, reaper and limiter.
	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
