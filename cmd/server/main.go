// Package main runs the broadcast API server with WebSocket signaling and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridiron-live/broadcast/config"
	"github.com/gridiron-live/broadcast/internal/auth"
	"github.com/gridiron-live/broadcast/internal/captions"
	"github.com/gridiron-live/broadcast/internal/events"
	"github.com/gridiron-live/broadcast/internal/metrics"
	"github.com/gridiron-live/broadcast/internal/middleware"
	"github.com/gridiron-live/broadcast/internal/realtime"
	"github.com/gridiron-live/broadcast/internal/recorder"
	"github.com/gridiron-live/broadcast/internal/recordings"
	"github.com/gridiron-live/broadcast/internal/scoreboards"
	"github.com/gridiron-live/broadcast/internal/sessions"
	"github.com/gridiron-live/broadcast/internal/streams"
	"github.com/gridiron-live/broadcast/internal/worker"
	"github.com/gridiron-live/broadcast/pkg/database"
	"github.com/gridiron-live/broadcast/pkg/queue"
	"github.com/gridiron-live/broadcast/pkg/redis"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.Pool(), logger)
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
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	sfu := realtime.NewSFU(logger, cfg.WebRTC.ICEUrls)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	sessionHandler := sessions.NewHandler(sessionRepo, jwtService, hub, sfu, m, logger)

	// Scoreboard, events and captions
	scoreboardHandler := scoreboards.NewHandler(scoreboards.NewRepository(pool), hub, logger)
	eventHandler := events.NewHandler(events.NewRepository(pool), hub, m, logger)
	captionHandler := captions.NewHandler(captions.NewStore(rdb.Client, cfg.Captions.TTL), hub, m, logger)

	// Audience tracking (peak viewers)
	tracker := streams.NewTracker(streams.NewRepository(pool), logger)
	hub.SetAudienceChangeHandler(tracker.OnAudienceChange)

	// Recordings: SFU tap via ffmpeg plus client uploads, both drained to S3 by the worker
	jobQueue := queue.NewQueue(rdb.Client, logger)
	recordingRepo := recordings.NewRepository(pool)
	recorderSvc := recorder.NewService(sfu, cfg.Recording.OutputDir, logger)
	recorderSvc.SetMaxDuration(cfg.Recording.MaxDurationSec)
	var presigner recordings.Presigner
	if s3Client != nil {
		presigner = s3Client
	}
	recordingHandler := recordings.NewHandler(recordingRepo, recorderSvc, jobQueue, presigner, cfg.Recording.OutputDir, logger)

	limiter := middleware.NewSessionLimiter(cfg.Limits.MutationsPerSecond, cfg.Limits.MutationBurst)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, m))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Public (viewer) API
	router.POST("/sessions", sessionHandler.Start)
	router.POST("/sessions/:code/token", sessionHandler.Resume)
	router.GET("/sessions/:code/valid", sessionHandler.Valid)
	router.GET("/sessions/:code", sessionHandler.Metadata)
	router.GET("/recordings/:id/download-url", recordingHandler.GenerateDownloadURL)

	viewer := router.Group("/sessions/:code")
	viewer.Use(sessionHandler.RequireSession(false))
	{
		viewer.GET("/scoreboard", scoreboardHandler.Get)
		viewer.GET("/events", eventHandler.List)
		viewer.GET("/flags/active", eventHandler.ActiveFlags)
		viewer.GET("/captions/latest", captionHandler.Latest)
		viewer.GET("/recordings", recordingHandler.List)
		viewer.GET("/stats", tracker.Handle)
	}

	// Broadcaster API: token scoped to :code, rate limited per session, live sessions only
	broadcaster := router.Group("/sessions/:code")
	broadcaster.Use(middleware.BroadcasterToken(jwtService), middleware.SessionRateLimit(limiter, m))
	{
		broadcaster.POST("/end", sessionHandler.End)

		live := broadcaster.Group("")
		live.Use(sessionHandler.RequireSession(true))
		live.PUT("/scoreboard", scoreboardHandler.Update)
		live.PUT("/team-icons", scoreboardHandler.SetTeamIcons)
		live.POST("/events", eventHandler.AddEvent)
		live.POST("/flags", eventHandler.AddFlag)
		live.DELETE("/flags/active", eventHandler.ClearFlags)
		live.POST("/captions", captionHandler.Add)
		live.POST("/recording/start", recordingHandler.StartRecording)
		live.POST("/recording/stop", recordingHandler.StopRecording)
		live.POST("/recordings", recordingHandler.Upload)
	}

	// WebSocket: session_code required, broadcaster token optional
	router.GET("/ws", realtime.ServeWs(realtime.WSDeps{
		Hub: hub,
		SFU: sfu,
		ValidateToken: func(token, code string) error {
			_, err := jwtService.ValidateFor(token, code)
			return err
		},
		SessionLive: func(ctx context.Context, code string) (bool, error) {
			s, err := sessionRepo.Get(ctx, code)
			if err != nil {
				return false, err
			}
			return s != nil && !s.Ended(), nil
		},
		Metrics: m,
		Logger:  logger,
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process upload worker; cmd/worker runs the same loop standalone.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		processor := worker.NewRecordingProcessor(recordingRepo, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("recording worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
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
