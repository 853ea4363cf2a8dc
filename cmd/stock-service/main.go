package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/catalog"
	stockhttp "github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/http"
	stockkafka "github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/kafka"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/memory"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/messaging"
	stockpg "github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/rabbitmq"
	stockredis "github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/redis"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/zookeeper"
	"github.com/dmehra2102/stock-reservation/pkg/config"
	"github.com/dmehra2102/stock-reservation/pkg/logging"
	"github.com/dmehra2102/stock-reservation/pkg/metrics"
	"github.com/dmehra2102/stock-reservation/pkg/shutdown"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

type consumer interface {
	Run(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", os.Getenv("STOCK_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(slog.LevelInfo).Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	log := logging.New(level).With("service", cfg.ServiceName)

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	checks := map[string]stockhttp.HealthCheck{}

	// Storage
	var store application.StockStore
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo := stockpg.NewRepository(log, pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Error("pg schema failed", "err", err)
			os.Exit(1)
		}
		store = repo
		checks["postgres"] = pool.Ping
	default:
		log.Warn("using in-memory stock store")
		store = memory.NewStore()
	}

	// Locking
	var locker application.Locker = application.NewKeyLock()
	if cfg.Lock == config.LockZooKeeper {
		zl, err := zookeeper.Connect(log, cfg.ZooKeeperServers, cfg.ZooKeeperSession, cfg.ZooKeeperRoot)
		if err != nil {
			log.Error("zookeeper connect failed", "err", err)
			os.Exit(1)
		}
		defer zl.Close()
		locker = zl
	}

	opts := []application.CoordinatorOption{
		application.WithLocker(locker),
		application.WithConflictRetries(cfg.ConflictRetries),
	}
	switch cfg.Ledger {
	case config.LedgerRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		opts = append(opts, application.WithLedger(stockredis.NewLedger(rdb, cfg.LedgerTTL)))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	case config.LedgerMemory:
		opts = append(opts, application.WithLedger(memory.NewLedger(cfg.LedgerTTL)))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	topo := messaging.NewTopology(cfg.Exchange)

	// Transport
	var (
		outcomes application.OutcomeChannel
		inbound  func(*messaging.Handler) consumer
	)
	switch cfg.Transport {
	case config.TransportKafka:
		writer := stockkafka.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()
		pub := stockkafka.NewPublisher(log, writer, topo)
		outcomes = pub
		inbound = func(h *messaging.Handler) consumer {
			return stockkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.KafkaGroup, cfg.Workers, topo, h, pub, cfg.RequeueDelay)
		}
	default:
		conn, err := rabbitmq.Dial(ctx, log, cfg.RabbitURL, topo)
		if err != nil {
			log.Error("rabbitmq connect failed", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		if err := conn.Declare(); err != nil {
			log.Error("rabbitmq topology failed", "err", err)
			os.Exit(1)
		}
		pub, err := rabbitmq.NewPublisher(log, conn, topo, cfg.PublishTimeout)
		if err != nil {
			log.Error("rabbitmq publisher failed", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		outcomes = pub
		inbound = func(h *messaging.Handler) consumer {
			return rabbitmq.NewConsumer(log, conn, topo, h, pub, rabbitmq.ConsumerConfig{
				Workers:      cfg.Workers,
				Prefetch:     cfg.Prefetch,
				RequeueDelay: cfg.RequeueDelay,
			})
		}
	}

	coord := application.NewReservationCoordinator(log, store, outcomes, opts...)
	handler := messaging.NewHandler(log, coord, m, cfg.CommandTimeout)
	cons := inbound(handler)

	svc := application.NewStockService(log, store, catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout), locker)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      stockhttp.NewRouter(stockhttp.NewHandler(log, svc), reg, checks),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := cons.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("consumer did not drain in time")
	}
	log.Info("stock-service shutdown complete")
}
