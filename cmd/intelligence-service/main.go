package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/solutionhub/platform/pkg/common/config"
	"github.com/solutionhub/platform/pkg/common/database"
	"github.com/solutionhub/platform/pkg/common/kafka"
	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/monitoring"
	"github.com/solutionhub/platform/pkg/notification"
	"github.com/solutionhub/platform/pkg/observability/metrics"
	"github.com/solutionhub/platform/pkg/pipeline"
	"github.com/solutionhub/platform/pkg/registry"
	syncengine "github.com/solutionhub/platform/pkg/sync"
	"github.com/solutionhub/platform/pkg/tender"
)

func main() {
	logger.Init()
	cfg := config.Load()
	metrics.Init()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	tenderRepo := tender.NewRepository(db)
	ruleRepo := monitoring.NewRepository(db)
	notifRepo := notification.NewRepository(db)
	for name, migrate := range map[string]func() error{
		"tender":       tenderRepo.AutoMigrate,
		"monitoring":   ruleRepo.AutoMigrate,
		"notification": notifRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).Fatalf("failed to migrate %s tables", name)
		}
	}

	cache := database.GetRedis()
	defer database.CloseRedis()

	classifier, err := tender.LoadClassifier(cfg.ClassifierConfigPath)
	if err != nil {
		logger.Log.WithError(err).Warn("classifier config unreadable, using built-in rules")
		classifier = tender.DefaultClassifier()
	}

	notifProducer := kafka.NewProducer(cfg.NotificationTopic)
	defer notifProducer.Close()
	syncProducer := kafka.NewProducer(cfg.TenderSyncedTopic)
	defer syncProducer.Close()

	var dlq notification.EventPublisher
	if cfg.NotificationDLQ != "" {
		dlqProducer := kafka.NewProducer(cfg.NotificationDLQ)
		defer dlqProducer.Close()
		dlq = dlqProducer
	}

	engine := monitoring.NewEngine(monitoring.ScoreWeights{
		Keyword: cfg.ScoreKeywordWeight,
		Value:   cfg.ScoreValueWeight,
		Org:     cfg.ScoreOrgWeight,
	})

	dispatcher := notification.NewDispatcher(notifRepo, ruleRepo, notifProducer, cfg.NotificationMaxRetries, cfg.NotificationTTL)
	sweeper := notification.NewSweeper(notifRepo, notifProducer, dlq)
	processor := pipeline.NewProcessor(ruleRepo, engine, tenderRepo, dispatcher)

	registryClient := registry.NewClient(cfg.RegistryBaseURL, cfg.RegistryUserAgent, cfg.RegistryListTimeout, cfg.RegistryDetailTimeout)
	mapper := tender.NewMapper(classifier)

	syncEngine := syncengine.NewEngine(registryClient, tenderRepo, mapper, processor, syncProducer, syncengine.Options{
		PageSize:    cfg.RegistryPageSize,
		PageCeiling: cfg.SyncPageCeiling,
		PageDelay:   cfg.SyncPageDelay,
		Lookback:    cfg.SyncLookback,
	})

	tenderService := tender.NewService(tenderRepo, cache, cfg.StatsCacheTTL)
	ruleService := monitoring.NewService(ruleRepo)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	tender.NewHandler(tenderService).Register(api)
	monitoring.NewHandler(ruleService).Register(api)
	notification.NewHandler(notifRepo).Register(api)
	syncengine.NewHandler(syncEngine).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := syncengine.NewScheduler(syncEngine)
	if err := scheduler.Start(ctx, cfg.SyncInterval, cfg.RetrySweepInterval, sweeper.Sweep); err != nil {
		logger.Log.WithError(err).Fatal("failed to start scheduler")
	}

	ackConsumer := kafka.NewConsumer(cfg.DeliveryAckTopic, cfg.KafkaGroupID)
	defer ackConsumer.Close()
	go func() {
		if err := ackConsumer.Consume(ctx, notification.AckHandler(notifRepo)); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("delivery ack consumer stopped")
		}
	}()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Intelligence Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Intelligence Service...")
	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Intelligence Service stopped")
}
