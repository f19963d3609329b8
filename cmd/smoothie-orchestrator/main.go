// Smoothie Orchestrator — принимает заказы и распределяет их по роботам.
//
// Orchestrator:
//   - Принимает заказы через HTTP API и очередь orders.submitted
//   - Захватывает свободного робота и отправляет ему команду
//   - Ждёт сигнал завершения с task token или таймаут
//   - Освобождает робота или выводит его из пула
//   - Публикует итог заказа в orders.completed
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/smoothie-dispatch/internal/api"
	"github.com/shaiso/smoothie-dispatch/internal/broker"
	"github.com/shaiso/smoothie-dispatch/internal/config"
	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/mq"
	"github.com/shaiso/smoothie-dispatch/internal/orchestrator"
	"github.com/shaiso/smoothie-dispatch/internal/orders"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
	"github.com/shaiso/smoothie-dispatch/internal/repo"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("SMOOTHIE_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting smoothie-orchestrator")

	if err := orchestrator.ValidateSchedule(cfg.Workflow.SweepSchedule); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool — только если он нужен хотя бы одному бэкенду
	var pool *pgxpool.Pool
	if cfg.Registry.Backend == config.BackendPostgres || cfg.Orders.Backend == config.BackendPostgres {
		pool, err = repo.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected")
	}

	// Реестр роботов
	reg, closeRegistry, err := openRegistry(ctx, cfg, pool)
	if err != nil {
		logger.Error("failed to open registry", "backend", cfg.Registry.Backend, "error", err)
		os.Exit(1)
	}
	defer closeRegistry()
	logger.Info("registry ready", "backend", cfg.Registry.Backend)

	if cfg.Registry.FleetFile != "" {
		fleet, err := registry.LoadFleet(cfg.Registry.FleetFile)
		if err != nil {
			logger.Error("failed to load fleet", "error", err)
			os.Exit(1)
		}
		if _, err := registry.Seed(ctx, reg, fleet, logger); err != nil {
			logger.Error("failed to seed fleet", "error", err)
			os.Exit(1)
		}
	}

	// Хранилище заказов
	var store orders.Store = orders.NewMemoryStore()
	if cfg.Orders.Backend == config.BackendPostgres {
		store = repo.NewOrderRepo(pool)
	}

	// RabbitMQ
	var dispatcher orchestrator.Dispatcher = offlineDispatcher{}
	var notifier orchestrator.Notifier
	var mqConn *mq.Connection

	mqConn, err = mq.NewConnection(mq.ConnectionConfig{
		URL:    cfg.RabbitMQ.URL,
		Name:   "smoothie-orchestrator",
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, robots are unreachable until restart", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		commands := mq.NewCommandPublisher(mqConn, mq.CommandPublisherConfig{Logger: logger})
		defer commands.Close()
		dispatcher = commands
		notifier = orchestrator.MQNotifier(mq.NewPublisher(mqConn, logger))
	}

	// Создаём orchestrator
	engine := orchestrator.New(orchestrator.Config{
		Registry:        reg,
		Orders:          store,
		Broker:          broker.New(broker.Config{Logger: logger}),
		Dispatcher:      dispatcher,
		Notifier:        notifier,
		Metrics:         orchestrator.NewMetrics(prometheus.DefaultRegisterer),
		Conn:            mqConn,
		DispatchTimeout: cfg.Workflow.DispatchTimeout,
		MaxLifetime:     cfg.Workflow.MaxLifetime,
		DrainTimeout:    cfg.Workflow.DrainTimeout,
		SweepSchedule:   cfg.Workflow.SweepSchedule,
		Logger:          logger,
	})

	// Запускаем orchestrator
	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if engine.IsStopped() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("stopping"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler := api.NewHandler(api.Config{
		Engine:    engine,
		Orders:    store,
		Registry:  reg,
		RateLimit: cfg.HTTP.RateLimit,
		RateBurst: cfg.HTTP.RateBurst,
		Logger:    logger,
	})
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Сначала orchestrator: во время drain HTTP ещё принимает
	// сигналы завершения, а новые заказы получают 503.
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("smoothie-orchestrator stopped")
}

// openRegistry создаёт реестр выбранного бэкенда.
func openRegistry(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (registry.Registry, func(), error) {
	noop := func() {}

	switch cfg.Registry.Backend {
	case config.BackendPostgres:
		return repo.NewRobotRepo(pool), noop, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return registry.NewRedisRegistry(client, cfg.Redis.Key), func() { client.Close() }, nil

	case config.BackendSQLite:
		reg, err := registry.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() { reg.Close() }, nil

	default:
		return registry.NewMemoryRegistry(), noop, nil
	}
}

// offlineDispatcher используется без RabbitMQ: канала ни к одному
// роботу нет, каждая команда завершается ошибкой доставки.
type offlineDispatcher struct{}

func (offlineDispatcher) Send(context.Context, string, *domain.WorkOrder, string) error {
	return fmt.Errorf("%w: message transport unavailable", mq.ErrDeliveryFailed)
}
