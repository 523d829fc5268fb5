// Worker entry point for FCE-Intelligence. Consumes report requests from
// Kafka, builds and renders the reports, stores the artifacts in MinIO and
// indexes the entries in OpenSearch.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/storage/minio"
	httpapi "github.com/turtacn/FCE-Intelligence/internal/interfaces/http"
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/worker"
)

const (
	defaultWorkerConfigPath = "configs/config.yaml"
	defaultHealthPort       = 8081
	publisherSource         = "fce-worker"
	reclaimGrace            = 30 * time.Second
)

var version = "dev"

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file")
	consumers := flag.Int("consumers", 0, "number of consumers in the group (default: worker.concurrency)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for /healthz, /readyz and /metrics")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	n := cfg.Worker.Concurrency
	if *consumers > 0 {
		n = *consumers
	}
	if n <= 0 {
		n = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, n, *healthPort, logger); err != nil {
		logger.Error("worker stopped with error", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, consumers, healthPort int, logger logging.Logger) error {
	logger.Info("starting FCE-Intelligence worker",
		logging.String("version", version),
		logging.Int("consumers", consumers),
		logging.String("topic", cfg.Kafka.ReportTopic),
	)

	var (
		metrics        = prometheus.NewNoopAppMetrics()
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(cfg.Metrics.Collector, logger)
		if err != nil {
			return err
		}
		metrics = prometheus.NewAppMetrics(collector)
		metricsHandler = collector.Handler()
	}

	infra, err := initWorkerInfrastructure(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	deps := reporting.ServiceDeps{
		Builder: reporting.NewBuilder(infra.resolver,
			reporting.WithWorkers(cfg.Engine.Workers),
			reporting.WithMaxBatchSize(cfg.Engine.MaxBatchSize),
			reporting.WithMetrics(metrics),
			reporting.WithLogger(logger),
		),
		Renderer:  reporting.NewRenderer(),
		Jobs:      repositories.NewJobRepository(infra.pool, logger),
		Publisher: kafka.NewReportPublisher(infra.producer, cfg.Kafka.ReportTopic, publisherSource),
		Store:     minio.NewReportStore(infra.objects, logger),
		Metrics:   metrics,
		Logger:    logger,
	}
	if infra.indexer != nil {
		deps.Indexer = infra.indexer
	}
	// The per-job lock already keeps replicas apart; without it a processing
	// job is only taken over once its owner has outlived the process timeout.
	if infra.cache == nil {
		deps.ReclaimAfter = cfg.Worker.ProcessTimeout + reclaimGrace
	}
	svc := reporting.NewService(deps)

	handlerOpts := []worker.ReportHandlerOption{
		worker.WithProcessTimeout(cfg.Worker.ProcessTimeout),
		worker.WithMetrics(metrics),
	}
	if infra.cache != nil {
		handlerOpts = append(handlerOpts, worker.WithLocker(redis.NewLocker(infra.cache, cfg.Redis.KeyPrefix, logger)))
	}
	handler := worker.NewReportHandler(svc, logger, handlerOpts...)

	consumerCfg := kafka.ConsumerConfigFrom(cfg.Kafka, cfg.Worker)
	group := make([]*kafka.Consumer, 0, consumers)
	defer func() {
		for _, c := range group {
			st := c.Stats()
			logger.Info("consumer stats",
				logging.Int64("consumed", st.Consumed),
				logging.Int64("processed", st.Processed),
				logging.Int64("failed", st.Failed),
				logging.Int64("dead_lettered", st.DeadLettered),
			)
			if err := c.Close(); err != nil {
				logger.Warn("failed to close consumer", logging.Err(err))
			}
		}
	}()
	for i := 0; i < consumers; i++ {
		c, err := kafka.NewConsumer(consumerCfg, infra.producer, logger.With(logging.Int("consumer", i)))
		if err != nil {
			return err
		}
		group = append(group, c)
		for _, topic := range consumerCfg.Topics {
			c.Subscribe(topic, handler.Handle)
		}
		if err := c.Start(ctx); err != nil {
			return err
		}
	}

	healthSrv := startHealthServer(cfg.Server, healthPort, infra, metricsHandler, logger)

	<-ctx.Done()
	logger.Info("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", logging.Err(err))
	}
	return nil
}

// workerInfrastructure holds the backing services of the worker. cache and
// indexer stay nil when redis or opensearch are disabled.
type workerInfrastructure struct {
	pool     *pgxpool.Pool
	cache    *redis.Client
	producer *kafka.Producer
	objects  *minio.Client
	search   *opensearch.Client
	indexer  *opensearch.ReportIndexer
	resolver citation.Resolver
	closers  []func()
	logger   logging.Logger
}

func initWorkerInfrastructure(ctx context.Context, cfg *config.Config, metrics *prometheus.AppMetrics, logger logging.Logger) (_ *workerInfrastructure, err error) {
	infra := &workerInfrastructure{logger: logger}
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	infra.onClose(func() { _ = conn.Close() })
	infra.resolver = citation.Fallback(
		citation.RepositoryResolver(repositories.NewPostgresCitationRepo(conn, logger)),
		citation.MustBuiltin(),
	)

	if infra.pool, err = postgres.NewPool(ctx, cfg.Database, logger); err != nil {
		return nil, err
	}
	infra.onClose(infra.pool.Close)

	if cfg.Redis.Enabled {
		if infra.cache, err = redis.NewClient(cfg.Redis, logger); err != nil {
			return nil, err
		}
		infra.onClose(func() { _ = infra.cache.Close() })
		cache := redis.NewRedisCache(infra.cache, logger,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.DefaultTTL),
		)
		infra.resolver = reporting.NewCachedResolver(infra.resolver, cache, cfg.Redis.DefaultTTL, metrics, logger)
	}

	// The producer also feeds the dead-letter topic.
	if infra.producer, err = kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger); err != nil {
		return nil, err
	}
	infra.onClose(func() { _ = infra.producer.Close() })

	if infra.objects, err = minio.NewClient(ctx, cfg.MinIO, logger); err != nil {
		return nil, err
	}
	infra.onClose(func() { _ = infra.objects.Close() })

	if cfg.OpenSearch.Enabled {
		if infra.search, err = opensearch.NewClient(ctx, cfg.OpenSearch, logger); err != nil {
			return nil, err
		}
		infra.onClose(func() { _ = infra.search.Close() })
		infra.indexer = opensearch.NewReportIndexer(infra.search, logger)
		if err = infra.indexer.EnsureIndex(ctx); err != nil {
			return nil, err
		}
	}
	return infra, nil
}

func (w *workerInfrastructure) onClose(fn func()) { w.closers = append(w.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (w *workerInfrastructure) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
	w.closers = nil
}

func (w *workerInfrastructure) healthChecks() []handlers.HealthChecker {
	checks := []handlers.HealthChecker{
		handlers.CheckFunc("postgres", w.pool.Ping),
		handlers.CheckFunc("minio", func(ctx context.Context) error {
			_, err := w.objects.HealthCheck(ctx)
			return err
		}),
	}
	if w.cache != nil {
		checks = append(checks, handlers.CheckFunc("redis", w.cache.Ping))
	}
	if w.search != nil {
		checks = append(checks, handlers.CheckFunc("opensearch", w.search.Ping))
	}
	return checks
}

// startHealthServer serves probes and metrics on port, reusing the API
// server's timeouts.
func startHealthServer(sc config.ServerConfig, port int, infra *workerInfrastructure, metricsHandler http.Handler, logger logging.Logger) *httpapi.Server {
	sc.Port = port
	router := httpapi.NewRouter(httpapi.RouterConfig{
		HealthHandler:  handlers.NewHealthHandler(version, infra.healthChecks()...),
		MetricsHandler: metricsHandler,
	})
	srv := httpapi.NewServer(sc, router, logger.Named("health"))
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}
