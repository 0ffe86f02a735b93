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

	"checkout-engine/config"
	"checkout-engine/internal/api"
	"checkout-engine/internal/auth"
	"checkout-engine/internal/broker"
	"checkout-engine/internal/callback"
	"checkout-engine/internal/idempotency"
	"checkout-engine/internal/payment"
	"checkout-engine/internal/redisclient"
	"checkout-engine/internal/service"
	"checkout-engine/internal/store"
	"checkout-engine/internal/util"
	"checkout-engine/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout engine",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer(util.TracingConfig{
		ServiceName:    "checkout-engine",
		ServiceVersion: cfg.Observ.ServiceVersion,
		Environment:    cfg.Server.Env,
		JaegerEndpoint: cfg.Observ.JaegerEndpoint,
		SampleRatio:    cfg.Observ.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	logger.Info("Database connected")

	var redisClient *redisclient.Client
	if cfg.Idempotency.Backend == "redis" {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")
	}

	claims := newClaimStore(cfg.Idempotency.Backend, db, redisClient)

	var (
		publisher service.EventPublisher
		notifier  service.Notifier
	)
	if cfg.Kafka.Enabled {
		orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer orderProducer.Close()
		fulfilmentProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicFulfilment)
		defer fulfilmentProducer.Close()
		notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer notificationProducer.Close()

		publisher = broker.NewEventPublisher(orderProducer, fulfilmentProducer)
		notifier = broker.NewNotifier(notificationProducer)
		logger.Info("Kafka producers initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logPublisher := broker.NewLogPublisher()
		publisher = broker.NewEventPublisher(logPublisher, logPublisher)
		notifier = broker.NewLogNotifier()
	}

	provider := payment.NewClient(payment.Config{
		BaseURL:        cfg.Payment.BaseURL,
		ConsumerKey:    cfg.Payment.ConsumerKey,
		ConsumerSecret: cfg.Payment.ConsumerSecret,
		ShortCode:      cfg.Payment.ShortCode,
		PassKey:        cfg.Payment.PassKey,
		CallbackURL:    cfg.Payment.CallbackURL,
		Timeout:        cfg.Payment.Timeout,
	})

	ledger := service.NewInventoryLedger(db)
	orderService := service.NewOrderService(db, db, ledger, provider, publisher, notifier)

	origins, err := callback.NewOriginPolicy(cfg.Callback.AllowedOrigins)
	if err != nil {
		logger.Fatal("Invalid callback origin allowlist", zap.Error(err))
	}
	if cfg.Callback.Secret == "" {
		logger.Warn("CALLBACK_HMAC_SECRET is not set, every payment callback will be rejected")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		queue          callback.Queue
		localQueue     *callback.LocalQueue
		callbackWorker *worker.CallbackWorker
	)
	useKafkaQueue := cfg.Kafka.Enabled && cfg.Callback.Queue == "kafka"
	if useKafkaQueue {
		callbackProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCallbacks)
		defer callbackProducer.Close()
		queue = broker.NewCallbackQueue(callbackProducer)
	} else {
		localQueue = callback.NewLocalQueue(cfg.Callback.LocalQueueSize, cfg.Callback.LocalWorkers, cfg.Callback.RetryBackoff)
		queue = localQueue
	}

	pipeline := callback.NewPipeline(origins, callback.NewVerifier(cfg.Callback.Secret), claims, orderService, queue,
		callback.Options{
			InFlightTTL:  cfg.Idempotency.InFlightTTL,
			Retention:    cfg.Idempotency.Retention,
			MaxAttempts:  cfg.Callback.MaxAttempts,
			RetryBackoff: cfg.Callback.RetryBackoff,
		})

	if useKafkaQueue {
		callbackConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCallbacks, cfg.Kafka.ConsumerGroup)
		callbackWorker = worker.NewCallbackWorker(callbackConsumer, pipeline)
		go func() {
			if err := callbackWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Callback worker error", zap.Error(err))
			}
		}()
	} else {
		localQueue.Start(workerCtx, pipeline.Process)
	}

	sweepWorker := worker.NewSweepWorker(claims, cfg.Idempotency.SweepInterval)
	go func() {
		if err := sweepWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Sweep worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Callback.TrustedProxies); err != nil {
		logger.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	handler := api.NewHandler(orderService, ledger, pipeline, auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry), api.Options{
		SignatureHeader:          cfg.Callback.SignatureHeader,
		DefaultLowStockThreshold: cfg.Business.DefaultLowStockThreshold,
	})
	handler.AddReadinessCheck("postgres", db)
	if redisClient != nil {
		handler.AddReadinessCheck("redis", redisClient)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if callbackWorker != nil {
		_ = callbackWorker.Stop()
	}
	if localQueue != nil {
		localQueue.Wait()
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if dropped := localQueue.Drain(drainCtx); dropped > 0 {
			logger.Error("Callbacks lost at shutdown", zap.Int("count", dropped))
		}
		drainCancel()
	}

	logger.Info("Server exited")
}

// newClaimStore picks the processed-callback backend
func newClaimStore(backend string, db *store.Store, redisClient *redisclient.Client) idempotency.Store {
	switch backend {
	case "redis":
		return redisClient
	case "postgres":
		return store.NewCallbackStore(db)
	default:
		util.GetLogger().Warn("Using in-memory callback idempotency; not safe across instances",
			zap.String("backend", backend))
		return idempotency.NewMemoryStore()
	}
}
