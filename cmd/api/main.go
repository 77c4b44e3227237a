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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/config"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/httpx"
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
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	// Kafka producers: stock adjustments and order settlement events
	stockProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockAdjusted, 1024, logger)
	stockProd.Start(ctx)
	orderProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderInventory, 1024, logger)
	orderProd.Start(ctx)

	repo := &orders.Repo{DB: db}
	ledger := inventory.NewLedger(repo, stockProd, cfg.ServiceName, logger)
	opts := settlement.Options{Publisher: orderProd, ServiceName: cfg.ServiceName, Logger: logger}

	// Redis is optional: without it the store guards alone keep settlement at-most-once.
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		opts.Locker = redisx.NewOrderLocker(rdb, cfg.OrderLockTTL)
	}
	coord := settlement.NewCoordinator(repo, ledger, opts)

	router := httpx.NewRouter(logger)
	ih := &httpx.InventoryHandler{Ledger: ledger, Coordinator: coord}
	ih.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	stockProd.Close()
	orderProd.Close()
	stockProd.WaitClosed()
	orderProd.WaitClosed()
	cancel()
}
