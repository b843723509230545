// Package main runs the live classroom HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classlive/backend/config"
	"github.com/classlive/backend/internal/arbiter"
	"github.com/classlive/backend/internal/auth"
	"github.com/classlive/backend/internal/comments"
	"github.com/classlive/backend/internal/handraise"
	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/middleware"
	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/internal/quizzes"
	"github.com/classlive/backend/internal/realtime"
	"github.com/classlive/backend/internal/registry"
	"github.com/classlive/backend/internal/resources"
	"github.com/classlive/backend/internal/sessions"
	"github.com/classlive/backend/internal/signaling"
	"github.com/classlive/backend/internal/store"
	"github.com/classlive/backend/internal/streaming"
	"github.com/classlive/backend/internal/streams"
	"github.com/classlive/backend/pkg/database"
	"github.com/classlive/backend/pkg/redis"
	"github.com/classlive/backend/pkg/response"
	"github.com/classlive/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ResourcesBucket:      cfg.AWS.ResourcesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Live session core. The registry is the authoritative in-memory state;
	// the record store mirrors it into PostgreSQL off the critical path.
	reg := registry.New(logger)
	arb := arbiter.New(reg, logger)
	hub := realtime.NewHub(logger)
	relay := signaling.NewRelay(reg, arb, hub, logger)
	recorder := store.New(pool, logger)
	locatorTTL := time.Duration(cfg.Streaming.LocatorTTLMin) * time.Minute
	streamCache := streams.NewCache(rdb.Client, locatorTTL, logger)
	endpoints := live.StreamEndpoints{
		IngestBaseURL:   cfg.Streaming.IngestBaseURL,
		PlaylistBaseURL: cfg.Streaming.PlaylistBaseURL,
	}
	orch := live.New(reg, arb, relay, hub, recorder, streamCache, endpoints, logger)

	storeCtx, storeCancel := context.WithCancel(context.Background())
	defer storeCancel()
	go recorder.Run(storeCtx)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// HTTP feature handlers
	sessionHandler := sessions.NewHandler(orch)
	commentHandler := comments.NewHandler(orch)
	handHandler := handraise.NewHandler(orch)
	quizHandler := quizzes.NewHandler(orch)
	streamHandler := streaming.NewHandler(orch, streamCache)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/profile", authHandler.Profile)

		// Sessions
		api.POST("/sessions", middleware.RequireRole(models.RoleProfessor), sessionHandler.Create)
		api.GET("/sessions", sessionHandler.ListActive)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.GET("/sessions/:id/audience", sessionHandler.Audience(hub))
		api.PATCH("/sessions/:id", middleware.RequireRole(models.RoleProfessor), sessionHandler.Update)
		api.POST("/sessions/:id/end", middleware.RequireRole(models.RoleProfessor), sessionHandler.End)

		// Comments
		api.POST("/sessions/:id/comments", commentHandler.Post)
		api.GET("/sessions/:id/comments", commentHandler.List)
		api.PUT("/sessions/:id/comments/:commentId/hide", middleware.RequireRole(models.RoleProfessor), commentHandler.Hide)

		// Hand raising
		api.POST("/sessions/:id/hands", middleware.RequireRole(models.RoleViewer), handHandler.Raise)
		api.GET("/sessions/:id/hands", middleware.RequireRole(models.RoleProfessor), handHandler.List)
		api.PUT("/sessions/:id/hands/:requestId/grant", middleware.RequireRole(models.RoleProfessor), handHandler.Grant)
		api.PUT("/sessions/:id/hands/:requestId/revoke", middleware.RequireRole(models.RoleProfessor), handHandler.Revoke)

		// Quizzes
		api.POST("/sessions/:id/quizzes", middleware.RequireRole(models.RoleProfessor), quizHandler.Create)
		api.POST("/sessions/:id/quizzes/:quizId/responses", middleware.RequireRole(models.RoleViewer), quizHandler.Respond)

		// Streaming and signaling
		api.GET("/sessions/:id/stream", streamHandler.Get)
		api.POST("/sessions/:id/stream/start", middleware.RequireRole(models.RoleProfessor), streamHandler.Start)
		api.POST("/sessions/:id/stream/stop", middleware.RequireRole(models.RoleProfessor), streamHandler.Stop)
		api.POST("/sessions/:id/stream/offer", streamHandler.Offer)
		api.POST("/sessions/:id/stream/answer", streamHandler.Answer)
		api.POST("/sessions/:id/stream/candidate", streamHandler.Candidate)

		// Resources (S3-backed lecture material)
		if s3Client != nil {
			resourceRepo := resources.NewRepository(pool)
			resourceHandler := resources.NewHandler(orch, resourceRepo, s3Client)
			api.POST("/sessions/:id/resources", middleware.RequireRole(models.RoleProfessor), resourceHandler.Upload)
			api.GET("/sessions/:id/resources", resourceHandler.List)
			api.GET("/sessions/:id/resources/:resourceId/download", resourceHandler.Download)
			api.DELETE("/sessions/:id/resources/:resourceId", middleware.RequireRole(models.RoleProfessor), resourceHandler.Delete)
		}
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, orch, logger, jwtService.Authenticate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	storeCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
