package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware dependencies needed to
// build the route tree. Nil handlers leave their routes unmounted.
type RouterConfig struct {
	EngineHandler   *handlers.EngineHandler
	CitationHandler *handlers.CitationHandler
	ReportHandler   *handlers.ReportHandler
	HealthHandler   *handlers.HealthHandler

	Logger  logging.Logger
	Metrics *prometheus.AppMetrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string
	Logging     *middleware.LoggingConfig
}

// NewRouter constructs the complete HTTP route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.CORSOrigins
		r.Use(middleware.CORS(cors))
	}
	if cfg.Logger != nil {
		lc := middleware.DefaultLoggingConfig()
		if cfg.Logging != nil {
			lc = *cfg.Logging
		}
		r.Use(middleware.RequestLogging(cfg.Logger, lc))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		registerEngineRoutes(api, cfg.EngineHandler)
		registerCitationRoutes(api, cfg.CitationHandler)
		registerReportRoutes(api, cfg.ReportHandler)
	})

	return r
}

func registerEngineRoutes(r chi.Router, h *handlers.EngineHandler) {
	if h == nil {
		return
	}
	r.Post("/classify", h.Classify)
	r.Post("/group", h.Group)
	r.Get("/norms", h.InferNorms)
	r.Post("/norms", h.InferNormsBatch)
	r.Get("/sections", h.Sections)
	r.Get("/rules", h.Rules)
}

func registerCitationRoutes(r chi.Router, h *handlers.CitationHandler) {
	if h == nil {
		return
	}
	r.Get("/citations/{testID}", h.ForTest)
}

// registerReportRoutes mounts report endpoints under /reports. The static
// segments are registered before /{id} so chi prefers them.
func registerReportRoutes(r chi.Router, h *handlers.ReportHandler) {
	if h == nil {
		return
	}
	r.Route("/reports", func(rr chi.Router) {
		rr.Post("/", h.Submit)
		rr.Post("/preview", h.Preview)
		rr.Get("/search", h.Search)

		rr.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Get("/download", h.Download)
		})
	})
}
