package main

import (
	"context"

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
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/http/handlers"
)

const publisherSource = "fce-apiserver"

// infrastructure holds the backing services of the API server. Optional
// components (redis, opensearch) stay nil when disabled.
type infrastructure struct {
	conn     *postgres.Connection
	pool     *pgxpool.Pool
	cache    *redis.Client
	producer *kafka.Producer
	objects  *minio.Client
	search   *opensearch.Client

	resolver  citation.Resolver
	jobs      reporting.JobRepository
	publisher reporting.Publisher
	store     reporting.ArtifactStore
	searcher  *opensearch.ReportSearcher

	logger logging.Logger
}

func initInfrastructure(ctx context.Context, cfg *config.Config, metrics *prometheus.AppMetrics, logger logging.Logger) (_ *infrastructure, err error) {
	infra := &infrastructure{logger: logger}
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	if infra.conn, err = postgres.NewConnection(ctx, cfg.Database, logger); err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err = migrate(infra.conn, logger); err != nil {
			return nil, err
		}
	}
	if infra.pool, err = postgres.NewPool(ctx, cfg.Database, logger); err != nil {
		return nil, err
	}
	infra.jobs = repositories.NewJobRepository(infra.pool, logger)

	// Rows in the citations table win; the compiled-in catalog answers for
	// tests the table does not know.
	infra.resolver = citation.Fallback(
		citation.RepositoryResolver(repositories.NewPostgresCitationRepo(infra.conn, logger)),
		citation.MustBuiltin(),
	)
	if cfg.Redis.Enabled {
		if infra.cache, err = redis.NewClient(cfg.Redis, logger); err != nil {
			return nil, err
		}
		cache := redis.NewRedisCache(infra.cache, logger,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.DefaultTTL),
		)
		infra.resolver = reporting.NewCachedResolver(infra.resolver, cache, cfg.Redis.DefaultTTL, metrics, logger)
	}

	if err = ensureTopics(ctx, cfg.Kafka, logger); err != nil {
		return nil, err
	}
	if infra.producer, err = kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger); err != nil {
		return nil, err
	}
	infra.publisher = kafka.NewReportPublisher(infra.producer, cfg.Kafka.ReportTopic, publisherSource)

	if infra.objects, err = minio.NewClient(ctx, cfg.MinIO, logger); err != nil {
		return nil, err
	}
	infra.store = minio.NewReportStore(infra.objects, logger)

	if cfg.OpenSearch.Enabled {
		if infra.search, err = opensearch.NewClient(ctx, cfg.OpenSearch, logger); err != nil {
			return nil, err
		}
		infra.searcher = opensearch.NewReportSearcher(infra.search, logger)
	}
	return infra, nil
}

func migrate(conn *postgres.Connection, logger logging.Logger) error {
	mg, err := postgres.NewMigrator(conn.DB(), logger)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg.ReportTopic, 1))
}

// healthChecks lists one readiness probe per configured backing service.
func (i *infrastructure) healthChecks() []handlers.HealthChecker {
	checks := []handlers.HealthChecker{
		handlers.CheckFunc("postgres", i.conn.HealthCheck),
		handlers.CheckFunc("postgres_pool", i.pool.Ping),
		handlers.CheckFunc("minio", func(ctx context.Context) error {
			_, err := i.objects.HealthCheck(ctx)
			return err
		}),
	}
	if i.cache != nil {
		checks = append(checks, handlers.CheckFunc("redis", i.cache.Ping))
	}
	if i.search != nil {
		checks = append(checks, handlers.CheckFunc("opensearch", i.search.Ping))
	}
	return checks
}

func (i *infrastructure) Close() {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			i.logger.Warn("failed to close kafka producer", logging.Err(err))
		}
	}
	if i.cache != nil {
		if err := i.cache.Close(); err != nil {
			i.logger.Warn("failed to close redis client", logging.Err(err))
		}
	}
	if i.objects != nil {
		_ = i.objects.Close()
	}
	if i.search != nil {
		_ = i.search.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
	if i.conn != nil {
		if err := i.conn.Close(); err != nil {
			i.logger.Warn("failed to close database", logging.Err(err))
		}
	}
}
