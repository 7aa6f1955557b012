package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/classtrack/classtrack-api/api/swagger"
	"github.com/classtrack/classtrack-api/internal/handler"
	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/repository"
	"github.com/classtrack/classtrack-api/internal/router"
	"github.com/classtrack/classtrack-api/internal/service"
	"github.com/classtrack/classtrack-api/pkg/cache"
	"github.com/classtrack/classtrack-api/pkg/config"
	"github.com/classtrack/classtrack-api/pkg/database"
	"github.com/classtrack/classtrack-api/pkg/logger"
	"github.com/classtrack/classtrack-api/pkg/storage"
)

// @title ClassTrack API
// @version 1.0.0
// @description Timetables, substitutions and attendance for schools
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Fatalw("failed to connect to redis", "error", err)
	}

	location := time.Local
	if cfg.Attendance.Timezone != "" && cfg.Attendance.Timezone != "Local" {
		loc, err := time.LoadLocation(cfg.Attendance.Timezone)
		if err != nil {
			sugar.Fatalw("invalid attendance timezone", "timezone", cfg.Attendance.Timezone, "error", err)
		}
		location = loc
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	substitutionRepo := repository.NewSubstitutionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, validate, logr)
	rosterSvc := service.NewRosterService(rosterRepo, userRepo, catalogRepo, validate, logr)
	timetableSvc := service.NewTimetableService(timetableRepo, catalogRepo, substitutionRepo, models.ImportMode(cfg.Timetable.DefaultImportMode), validate, logr)
	substitutionSvc := service.NewSubstitutionService(substitutionRepo, timetableRepo, rosterRepo, validate, logr, location)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, timetableRepo, substitutionRepo, rosterRepo, cacheRepo, metricsSvc, validate, logr, location)
	reportSvc := service.NewReportService(attendanceRepo, rosterRepo, cacheRepo, cfg.Reports.CacheTTL, metricsSvc, logr)
	exportSvc := service.NewExportService(exportJobRepo, reportSvc, store, signer, cfg.Reports.WorkerConcurrency, cfg.Reports.WorkerRetries, metricsSvc, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportSvc.Start(ctx)
	defer exportSvc.Stop()

	handlers := router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Catalog:      handler.NewCatalogHandler(catalogSvc),
		Roster:       handler.NewRosterHandler(rosterSvc),
		Timetable:    handler.NewTimetableHandler(timetableSvc),
		Substitution: handler.NewSubstitutionHandler(substitutionSvc),
		Attendance:   handler.NewAttendanceHandler(attendanceSvc),
		Report:       handler.NewReportHandler(reportSvc),
		Export:       handler.NewExportHandler(exportSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc),
	}

	r := router.New(cfg, logr, authSvc, metricsSvc, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("graceful shutdown failed", "error", err)
	}
}
