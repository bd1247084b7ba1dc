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

	"frostflow/config"
	"frostflow/internal/api"
	"frostflow/internal/broker"
	"frostflow/internal/redisclient"
	"frostflow/internal/remote"
	"frostflow/internal/service"
	"frostflow/internal/toast"
	"frostflow/internal/util"
	"frostflow/internal/webhook"
	"frostflow/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting frostflow service")

	tp, err := util.InitTracer("frostflow", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	gateway, err := remote.NewGateway(cfg.Database.URL, cfg.Database.Schema)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer gateway.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Redis unavailable, falling back to in-process guards: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	hook := webhook.NewClient(cfg.Webhook.BaseURL, cfg.Webhook.Timeout)

	toasts := toast.NewSink(100)

	store := service.NewProductStore(gateway, toasts)
	store.SetLowStockThreshold(cfg.Business.LowStockThreshold)

	var locker service.ResolutionLocker
	var idem service.IdempotencyStore
	if redisClient != nil {
		locker = redisClient
		idem = redisClient
	}
	recon := service.NewReconEngine(gateway, locker, toasts, cfg.Business.ResolutionLockTTL)
	stockService := service.NewStockService(gateway, hook, toasts)
	salesService := service.NewSalesService(gateway, hook, idem, toasts)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Load(loadCtx, false); err != nil {
		log.Printf("Initial product load failed, will retry on first request: %v", err)
	}
	loadCancel()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	changeConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicChanges, cfg.Kafka.ConsumerGroup)
	syncWorker := worker.NewProductSyncWorker(changeConsumer, store)
	syncWorker.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(store, recon, stockService, salesService, gateway, toasts, cfg.Business.LowStockThreshold)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := syncWorker.Stop(); err != nil {
		log.Printf("Error stopping sync worker: %v", err)
	}

	log.Println("Server exited")
}
