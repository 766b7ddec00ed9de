package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alcyxob/wellness-program/internal/api"
	"alcyxob/wellness-program/internal/calendar"
	"alcyxob/wellness-program/internal/config"
	"alcyxob/wellness-program/internal/lock"
	"alcyxob/wellness-program/internal/logging"
	"alcyxob/wellness-program/internal/notify"
	"alcyxob/wellness-program/internal/repository"
	"alcyxob/wellness-program/internal/repository/memory"
	"alcyxob/wellness-program/internal/repository/mongo"
	"alcyxob/wellness-program/internal/service"
	"alcyxob/wellness-program/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// repositories is the storage backend chosen by database.driver.
type repositories struct {
	users      repository.UserRepository
	tasks      repository.TaskRepository
	ledger     repository.ComplianceRepository
	samples    repository.BodyMetricsRepository
	recs       repository.RecommendationRepository
	zones      repository.ZoneProgressRepository
	videos     repository.ZoneVideoRepository
	templates  repository.TemplateRepository
	tx         repository.Transactor
	disconnect func()
}

// @title Wellness Program API
// @version 1.0
// @description Zone-based wellness programs: task allocation, compliance tracking, zone progression.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// A local .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: could not read .env: %v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL: Could not build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting wellness program server", zap.String("driver", cfg.Database.Driver))

	repos, err := openRepositories(cfg.Database, logger)
	if err != nil {
		logger.Fatal("could not open repositories", zap.Error(err))
	}
	defer repos.disconnect()

	locker, closeLocker := newLocker(cfg.Redis, logger)
	defer closeLocker()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStartup()

	fileStorage, err := storage.NewS3Storage(startupCtx, cfg.S3, logger)
	if err != nil {
		logger.Fatal("failed to initialize S3 storage", zap.Error(err))
	}

	loc, err := cfg.Program.Location()
	if err != nil {
		logger.Fatal("invalid program timezone", zap.Error(err))
	}
	cal := calendar.New(loc)
	clock := service.SystemClock{}
	bands := service.ComplianceBands{
		ExcellentAtLeast: cfg.Compliance.ExcellentAtLeast,
		GoodAtLeast:      cfg.Compliance.GoodAtLeast,
		PoorBelow:        cfg.Zone.PoorComplianceBelow,
	}
	dispatcher := notify.NewDispatcher(notify.NewLogSender(logger), cfg.Notify.Timeout, logger)

	zoneService := service.NewZoneService(service.ZoneServiceDeps{
		Users:      repos.users,
		Zones:      repos.zones,
		Videos:     repos.videos,
		Tasks:      repos.tasks,
		Ledger:     repos.ledger,
		Tx:         repos.tx,
		Locker:     locker,
		Storage:    fileStorage,
		Calendar:   cal,
		Clock:      clock,
		Notifier:   dispatcher,
		Logger:     logger,
		Policy:     cfg.Zone,
		Bands:      bands,
		PresignTTL: cfg.S3.PresignTTL,
	})
	programService := service.NewProgramService(repos.users, repos.templates, repos.tasks, repos.ledger, repos.tx, locker,
		zoneService, cal, clock, dispatcher, service.ProgramPolicy{AllowReplace: cfg.Program.AllowReplace}, logger)

	svc := api.Services{
		Auth:     service.NewAuthService(repos.users, cfg.JWT.Secret, cfg.JWT.Expiration, logger),
		Doctors:  service.NewDoctorService(repos.users, repos.tx, logger),
		Tasks:    service.NewTaskService(repos.users, repos.tasks, repos.ledger, repos.tx, cal, bands, clock, dispatcher, logger),
		Zones:    zoneService,
		Programs: programService,
		Wellness: service.NewWellnessService(repos.users, repos.samples, repos.recs, repos.zones, clock, logger),
	}

	if cfg.Templates.SeedDir != "" {
		n, err := programService.LoadTemplateSeeds(startupCtx, cfg.Templates.SeedDir)
		if err != nil {
			logger.Fatal("failed to load template seeds", zap.String("dir", cfg.Templates.SeedDir), zap.Error(err))
		}
		logger.Info("template seeds loaded", zap.Int("count", n))
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.RouterConfig{
		JWTSecret:     cfg.JWT.Secret,
		InternalToken: cfg.Internal.AuthToken,
		CORSOrigins:   cfg.Server.CORSOrigins,
	}, svc, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Wait(ctxShutdown); err != nil {
		logger.Warn("pending notifications dropped", zap.Error(err))
	}
	logger.Info("server exiting")
}

func openRepositories(cfg config.DatabaseConfig, logger *zap.Logger) (*repositories, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			users:      store.Users,
			tasks:      store.Tasks,
			ledger:     store.Compliance,
			samples:    store.BodyMetrics,
			recs:       store.Recommendations,
			zones:      store.Zones,
			videos:     store.Videos,
			templates:  store.Templates,
			tx:         store.Tx,
			disconnect: func() {},
		}, nil
	}

	client, err := mongo.ConnectDB(cfg.URI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.Name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	// The once-per-day guarantee depends on the unique ledger index, so a
	// failure here is fatal rather than logged.
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		_ = mongo.DisconnectDB(client)
		return nil, err
	}
	logger.Info("database connection established", zap.String("database", cfg.Name))

	return &repositories{
		users:     mongo.NewMongoUserRepository(db),
		tasks:     mongo.NewMongoTaskRepository(db),
		ledger:    mongo.NewMongoComplianceRepository(db),
		samples:   mongo.NewMongoBodyMetricsRepository(db),
		recs:      mongo.NewMongoRecommendationRepository(db),
		zones:     mongo.NewMongoZoneProgressRepository(db),
		videos:    mongo.NewMongoZoneVideoRepository(db),
		templates: mongo.NewMongoTemplateRepository(db),
		tx:        mongo.NewTransactor(client, cfg.Transactions),
		disconnect: func() {
			if err := mongo.DisconnectDB(client); err != nil {
				logger.Error("failed to disconnect MongoDB", zap.Error(err))
			}
		},
	}, nil
}

// newLocker returns a Redis-backed locker when several instances share the
// database, otherwise an in-process one.
func newLocker(cfg config.RedisConfig, logger *zap.Logger) (lock.KeyedLocker, func()) {
	if !cfg.Enabled {
		return lock.NewLocalLocker(), func() {}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := lock.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		logger.Fatal("could not connect to redis", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	return lock.NewRedisLocker(client, cfg.LockTTL, logger), func() { _ = client.Close() }
}
