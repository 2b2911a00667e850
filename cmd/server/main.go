package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/config"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/database"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/event"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/handler"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/logger"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/middleware"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/repository"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/router"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/service"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/store"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/validator"
	ws "github.com/Gustaveizabayo/iSooKO-sub001/internal/websocket"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("session_backend", cfg.SessionBackend).
		Msg("Starting session service")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Event Bus ─────────────────────────────────────────────────────
	bus := event.NewBus(log)

	// ─── Session Store ─────────────────────────────────────────────────
	var (
		sessionStore store.ExpiringStore
		sweeper      *worker.SweepWorker
	)
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		sessionStore = store.NewRedisStore(rdb, "")
		event.NewRedisRelay(rdb, config.CacheKey.SessionEventsChannel()).Register(bus)
	default:
		mem := store.NewMemoryStore()
		sessionStore = mem
		sweeper = worker.NewSweepWorker(mem, cfg.SessionSweepInterval, log)
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	attemptRepo := repository.NewExamAttemptRepository(pool)
	revocationRepo := repository.NewRevocationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	registry := service.NewSessionRegistry(sessionStore, bus, service.SessionPolicy{
		GeneralTTL: cfg.GeneralSessionTTL,
		ExamTTL:    cfg.ExamSessionTTL,
	}, log)
	accessValidator := service.NewAccessValidator(registry, log)
	examGate := service.NewExamGate(registry)
	authService := service.NewAuthService(cfg, userRepo, registry)
	attemptService := service.NewExamAttemptService(attemptRepo)

	// ─── Event Subscribers ─────────────────────────────────────────────
	scorePolicy, err := worker.ScorePolicyByName(cfg.AutoSubmitScorePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid auto-submit score policy")
	}
	worker.NewAutoSubmitCoordinator(attemptRepo, scorePolicy, cfg.AutoSubmitTimeout, log).Register(bus)

	auditWorker := worker.NewAuditWorker(revocationRepo, log)
	auditWorker.Register(bus)

	hub := ws.NewHub()
	hub.Register(bus)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, registry, log),
		Session: handler.NewSessionHandler(registry, revocationRepo, log),
		Exam:    handler.NewExamHandler(attemptService, log),
		WS:      handler.NewWSHandler(hub, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	loginLimits := middleware.NewRateLimiter(cfg.LoginRateLimit, time.Minute)
	workers.Go(func() { loginLimits.Start(workerCtx) })
	workers.Go(func() { auditWorker.Start(workerCtx) })
	if sweeper != nil {
		workers.Go(func() { sweeper.Start(workerCtx) })
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r, err := router.SetupRouter(&router.Guards{
		Auth:        authService,
		Validator:   accessValidator,
		Gate:        examGate,
		LoginLimits: loginLimits,
	}, handlers, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure router")
	}

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// 2. Let in-flight event handlers finish. The audit worker is still
	//    running so queued revocations get flushed below.
	bus.Wait()

	// 3. Stop background workers.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
