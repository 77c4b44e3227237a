package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/config"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/inventory"
	kafkax "github.com/tovarapvp/monarca-next-js-sub000/internal/kafka"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/logging"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/postgres"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/redisx"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/settlement"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/tracing"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-settlement"

	logger, err := logging.New(logging.Config{
		Development: cfg.Development(),
		Encoding:    cfg.LogEncoding,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	tracing.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// producers outlive the consumer so in-flight handlers can still publish;
	// Close stops them
	stockProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockAdjusted, 1024, logger)
	stockProd.Start(context.Background())
	orderProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderInventory, 1024, logger)
	orderProd.Start(context.Background())

	repo := &orders.Repo{DB: db}
	ledger := inventory.NewLedger(repo, stockProd, service, logger)
	opts := settlement.Options{Publisher: orderProd, ServiceName: service, Logger: logger}
	handler := &settlement.PaymentHandler{Log: logger.Named("payments")}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		opts.Locker = redisx.NewOrderLocker(rdb, cfg.OrderLockTTL)
		handler.Dedup = redisx.NewDeduper(rdb, service, cfg.DedupTTL)
	}
	handler.Coordinator = settlement.NewCoordinator(repo, ledger, opts)

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PaymentGroup, orders.TopicPaymentSettled, cfg.PaymentWorkers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("payment consumer started",
			zap.String("group", cfg.PaymentGroup), zap.String("topic", orders.TopicPaymentSettled), zap.Int("workers", cfg.PaymentWorkers))
		if err := cons.Start(ctx, handler.HandlePaymentSettled); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		// late handlers publishing after Close are dropped by the producers
		logger.Warn("consumer did not stop in time")
	}
	stockProd.Close()
	orderProd.Close()
	stockProd.WaitClosed()
	orderProd.WaitClosed()
}
