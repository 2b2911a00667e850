package router

import (
	"net/http"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/config"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/handler"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/middleware"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/response"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	Exam    *handler.ExamHandler
	WS      *handler.WSHandler
}

// Guards groups the services the session middlewares depend on.
type Guards struct {
	Auth        *service.AuthService
	Validator   *service.AccessValidator
	Gate        *service.ExamGate
	LoginLimits *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(guards *Guards, handlers *Handlers, cfg *config.Config) (*gin.Engine, error) {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// Exam sessions are pinned to ClientIP, so forwarded headers are only
	// honoured from configured proxies.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireSession := []gin.HandlerFunc{
		middleware.RequireJWT(guards.Auth),
		middleware.RequireActiveSession(guards.Validator),
	}

	// REST responses are compressed; the WebSocket group streams unbuffered.
	api := router.Group("/api/v1")
	api.Use(middleware.Brotli(middleware.DefaultBrotliConfig))

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := api.Group("/auth")
	{
		auth.POST("/login", guards.LoginLimits.Middleware(), handlers.Auth.Login)
		auth.POST("/logout", append(requireSession, handlers.Auth.Logout)...)
	}

	// ─── 2. Session Group (JWT + Active Session) ───────────────────────
	sessions := api.Group("/sessions")
	sessions.Use(requireSession...)
	{
		sessions.GET("", handlers.Session.List)
		sessions.GET("/current", handlers.Session.Current)
		sessions.GET("/revocations", handlers.Session.Revocations)
		sessions.POST("/current/exam", handlers.Session.UpgradeToExam)
		sessions.POST("/current/proctor-verify", handlers.Session.ProctorVerify)
		sessions.DELETE("/:session_id", handlers.Session.Revoke)
	}

	// ─── 3. Exam Group (JWT + Active Session, writes need EXAM) ─────────
	exam := api.Group("/exam")
	exam.Use(requireSession...)
	{
		exam.GET("/attempts", handlers.Exam.ListAttempts)
		exam.POST("/attempts", middleware.RequireExamSession(guards.Gate), handlers.Exam.StartAttempt)
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireSession...)
	{
		ws.GET("/sessions/events", handlers.WS.SessionEvents)
	}

	return router, nil
}
