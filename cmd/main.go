package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gapopshub/api/internal/aienricher"
	"github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/cache"
	"github.com/gapopshub/api/internal/config"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/events"
	"github.com/gapopshub/api/internal/gapcore"
	"github.com/gapopshub/api/internal/handlers"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/notifier"
	"github.com/gapopshub/api/internal/realtime"
	"github.com/gapopshub/api/internal/scheduler"
	"github.com/gapopshub/api/internal/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()
	log.Info().Msg("Starting Process Gap Intelligence API...")

	database, err := db.NewDatabase(db.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.DBName,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	logger.Database().Info().Msg("running migrations")
	if err := database.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.NewCache(cache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Enabled:  cfg.Redis.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize redis cache, continuing without it")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	jwtManager := auth.NewJWTManagerWithSessions(&auth.JWTConfig{
		SecretKey:     cfg.Session.Secret,
		Issuer:        "gap-intel-api",
		TokenDuration: cfg.Session.TTL,
	}, redisCache)
	if redisCache.IsEnabled() {
		if err := jwtManager.ClearAllSessions(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to clear sessions on startup")
		}
	}

	bus := events.NewBus()
	if cfg.NATS.Enabled {
		mirror, err := events.NewNATSMirror(cfg.NATS.URL, "gap.events")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing without durable mirror")
		} else {
			bus = bus.WithMirror(mirror)
			defer mirror.Close()
		}
	}

	sqlDB := database.DB()
	gapStore := db.NewGapStore(sqlDB)
	pocStore := db.NewGapPocStore(sqlDB)
	commentStore := db.NewCommentStore(sqlDB)
	assignmentStore := db.NewAssignmentStore(sqlDB)
	historyStore := db.NewResolutionHistoryStore(sqlDB)
	extensionStore := db.NewTatExtensionStore(sqlDB)
	similarGapStore := db.NewSimilarGapStore(sqlDB)
	userStore := db.NewUserStore(sqlDB)
	sopStore := db.NewSopStore(database)
	formTemplateStore := db.NewFormTemplateStore(sqlDB)

	heuristic := aienricher.NewHeuristic()
	aiPool := aienricher.New(gapStore, similarGapStore, sopStore, heuristic, heuristic, aienricher.Config{
		Concurrency: cfg.AI.Concurrency,
		Threshold:   cfg.AI.SimilarityThreshold,
		TopK:        cfg.AI.TopKSops,
	})
	defer aiPool.Stop()

	core := gapcore.New(database, gapStore, pocStore, commentStore, assignmentStore, historyStore, extensionStore, similarGapStore, userStore, bus, aiPool)

	hub := realtime.NewHub()
	go hub.Run()

	auditLogger := middleware.NewAuditLogger(database)

	mailer := notifier.NewSMTPMailer(cfg.Email)
	notify := notifier.New(mailer, hub, auditLogger, gapStore, pocStore, userStore)
	notify.Subscribe(bus)

	sched := scheduler.New(gapStore, bus, cfg.Scheduler.WarnWindow)
	tickExpr := fmt.Sprintf("@every %s", cfg.Scheduler.TickInterval)
	if err := sched.Start(tickExpr); err != nil {
		log.Fatal().Err(err).Msg("failed to start TAT scheduler")
	}
	defer sched.Stop()

	uploadStore, err := uploads.New(cfg.Upload)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload storage")
	}

	rateLimiter := middleware.NewRateLimiter(10, 30)
	sessionManager := middleware.NewSessionManager(cfg.Session.IdleTimeout, cfg.Session.MaxConcurrent)

	h := &handlers.Handlers{
		Gap:          handlers.NewGapHandler(core, gapStore, pocStore, commentStore, historyStore, extensionStore, similarGapStore, auditLogger, uploadStore),
		Sop:          handlers.NewSopHandler(sopStore, auditLogger),
		FormTemplate: handlers.NewFormTemplateHandler(formTemplateStore, auditLogger),
		User:         handlers.NewUserHandler(userStore, auditLogger),
		Auth:         handlers.NewAuthHandler(userStore, jwtManager, cfg.Session, sessionManager),
		Export:       handlers.NewExportHandler(gapStore, formTemplateStore, userStore),
		WebSocket:    handlers.NewWebSocketHandler(hub, gapStore, core),
		Upload:       handlers.NewUploadHandler(uploadStore),
	}

	router := handlers.NewRouter(h, jwtManager, userStore, rateLimiter, sessionManager)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal, starting graceful shutdown")

	shutdownTimeout := 30 * time.Second
	if timeoutEnv := os.Getenv("SHUTDOWN_TIMEOUT"); timeoutEnv != "" {
		if d, err := time.ParseDuration(timeoutEnv); err == nil {
			shutdownTimeout = d
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server forced to shutdown")
	} else {
		log.Info().Msg("HTTP server stopped gracefully")
	}
}
