// API server entry point for FCE-Intelligence. Serves the classification
// engine and the report workflow over HTTP and gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	grpcapi "github.com/turtacn/FCE-Intelligence/internal/interfaces/grpc"
	httpapi "github.com/turtacn/FCE-Intelligence/internal/interfaces/http"
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/http/handlers"
)

const defaultConfigPath = "configs/config.yaml"

// Injected at build time via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); err != nil {
		// Without a file the environment alone configures the server.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, path, logger); err != nil {
		logger.Error("api server stopped with error", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("api server stopped")
}

func run(ctx context.Context, cfg *config.Config, configPath string, logger logging.Logger) error {
	logger.Info("starting FCE-Intelligence API server",
		logging.String("version", version),
		logging.String("commit", gitCommit),
		logging.String("http_addr", cfg.Server.Addr()),
		logging.String("grpc_addr", cfg.GRPC.Addr()),
	)

	metricsHandler, metrics, err := initMetrics(cfg, logger)
	if err != nil {
		return err
	}

	infra, err := initInfrastructure(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	builder := reporting.NewBuilder(infra.resolver,
		reporting.WithWorkers(cfg.Engine.Workers),
		reporting.WithMaxBatchSize(cfg.Engine.MaxBatchSize),
		reporting.WithMetrics(metrics),
		reporting.WithLogger(logger),
	)
	svc := reporting.NewService(reporting.ServiceDeps{
		Builder:   builder,
		Renderer:  reporting.NewRenderer(),
		Jobs:      infra.jobs,
		Publisher: infra.publisher,
		Store:     infra.store,
		Metrics:   metrics,
		Logger:    logger,
	})

	reportOpts := []handlers.ReportHandlerOption{handlers.WithMaxBodySize(cfg.Server.MaxBodySize)}
	if infra.searcher != nil {
		reportOpts = append(reportOpts, handlers.WithSearcher(infra.searcher))
	}
	engineCfg := handlers.EngineConfig{
		Workers:      cfg.Engine.Workers,
		MaxBatchSize: cfg.Engine.MaxBatchSize,
		MaxBodySize:  cfg.Server.MaxBodySize,
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		EngineHandler:   handlers.NewEngineHandler(engineCfg, metrics, logger),
		CitationHandler: handlers.NewCitationHandler(infra.resolver, logger),
		ReportHandler:   handlers.NewReportHandler(svc, logger, reportOpts...),
		HealthHandler:   handlers.NewHealthHandler(version, infra.healthChecks()...),
		Logger:          logger,
		Metrics:         metrics,
		MetricsHandler:  metricsHandler,
		CORSOrigins:     cfg.Server.CORSOrigins,
	})
	httpSrv := httpapi.NewServer(cfg.Server, router, logger)

	grpcSrv, err := grpcapi.NewServer(cfg.GRPC,
		grpcapi.WithLogger(logger),
		grpcapi.WithMetrics(metrics),
		grpcapi.WithGracefulTimeout(cfg.Server.ShutdownTimeout),
	)
	if err != nil {
		return err
	}
	grpcSrv.RegisterService(&grpcapi.EngineServiceDesc, grpcapi.NewEngineService(grpcapi.EngineConfig{
		Workers:      cfg.Engine.Workers,
		MaxBatchSize: cfg.Engine.MaxBatchSize,
	}, metrics, logger))

	if configPath != "" {
		watchConfig(configPath, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(grpcSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", logging.Err(err))
		}
		if err := grpcSrv.Stop(shutdownCtx); err != nil {
			logger.Error("grpc server shutdown error", logging.Err(err))
		}
		return nil
	})
	return g.Wait()
}

// initMetrics returns a nil handler and no-op metrics when metrics are off.
func initMetrics(cfg *config.Config, logger logging.Logger) (http.Handler, *prometheus.AppMetrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, prometheus.NewNoopAppMetrics(), nil
	}
	collector, err := prometheus.NewMetricsCollector(cfg.Metrics.Collector, logger)
	if err != nil {
		return nil, nil, err
	}
	return collector.Handler(), prometheus.NewAppMetrics(collector), nil
}

// watchConfig applies the settings that can change without a restart. Only
// the log level is live; everything else is logged as needing a restart.
func watchConfig(path string, logger logging.Logger) {
	err := config.Watch(path, func(next *config.Config) {
		if logging.SetLevel(logger, next.Log.Level) {
			logger.Info("log level reloaded", logging.String("level", next.Log.Level))
		}
		logger.Info("configuration file changed; restart to apply other settings")
	}, func(err error) {
		logger.Warn("ignoring invalid configuration change", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config hot reload disabled", logging.Err(err))
	}
}
