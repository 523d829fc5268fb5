package prometheus

import (
	"strconv"
	"time"
)

var (
	// HTTPDurationBuckets covers fast JSON endpoints up to slow report previews.
	HTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

	// ReportBuildBuckets covers in-memory builds through artefact uploads.
	ReportBuildBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

// AppMetrics is the set of metrics recorded by the service. Construct it once
// per process with NewAppMetrics and pass it to the components that record.
type AppMetrics struct {
	Classifications   CounterVec
	NormInferences    CounterVec
	ReportBuilds      HistogramVec
	ReportJobs        CounterVec
	CitationCacheHits CounterVec
	CitationLookups   HistogramVec

	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPInFlight        GaugeVec

	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	WorkerMessages CounterVec
}

// NewAppMetrics registers every application metric on c.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		Classifications: c.RegisterCounter("classifications_total",
			"Test records classified, by section and rule.", "section", "rule"),
		NormInferences: c.RegisterCounter("norm_inferences_total",
			"Norm inferences performed, by norm category.", "category"),
		ReportBuilds: c.RegisterHistogram("report_build_duration_seconds",
			"Time spent building a report, by mode.", ReportBuildBuckets, "mode"),
		ReportJobs: c.RegisterCounter("report_jobs_total",
			"Report job status transitions.", "status"),
		CitationCacheHits: c.RegisterCounter("citation_cache_total",
			"Citation cache lookups, by result.", "result"),
		CitationLookups: c.RegisterHistogram("citation_lookup_duration_seconds",
			"Citation resolution latency, by source.", nil, "source"),

		HTTPRequestsTotal: c.RegisterCounter("http_requests_total",
			"HTTP requests served.", "method", "route", "status"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds",
			"HTTP request latency.", HTTPDurationBuckets, "method", "route"),
		HTTPInFlight: c.RegisterGauge("http_requests_in_flight",
			"HTTP requests currently being served.", "server"),

		GRPCRequestsTotal: c.RegisterCounter("grpc_requests_total",
			"gRPC unary calls served.", "method", "code"),
		GRPCRequestDuration: c.RegisterHistogram("grpc_request_duration_seconds",
			"gRPC unary call latency.", HTTPDurationBuckets, "method"),

		WorkerMessages: c.RegisterCounter("worker_messages_total",
			"Report request messages consumed by the worker, by outcome.", "outcome"),
	}
}

func (m *AppMetrics) RecordClassification(section, rule string) {
	m.Classifications.WithLabelValues(section, rule).Inc()
}

func (m *AppMetrics) RecordNormInference(category string) {
	m.NormInferences.WithLabelValues(category).Inc()
}

func (m *AppMetrics) RecordReportBuild(mode string, d time.Duration) {
	m.ReportBuilds.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *AppMetrics) RecordReportJob(status string) {
	m.ReportJobs.WithLabelValues(status).Inc()
}

// RecordCitationCache counts a cache lookup as "hit" or "miss".
func (m *AppMetrics) RecordCitationCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CitationCacheHits.WithLabelValues(result).Inc()
}

func (m *AppMetrics) RecordCitationLookup(source string, d time.Duration) {
	m.CitationLookups.WithLabelValues(source).Observe(d.Seconds())
}

func (m *AppMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *AppMetrics) RecordGRPCRequest(method, code string, d time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *AppMetrics) RecordWorkerMessage(outcome string) {
	m.WorkerMessages.WithLabelValues(outcome).Inc()
}

// NewNoopAppMetrics returns metrics that record nothing, for tests and tools
// that run without a registry.
func NewNoopAppMetrics() *AppMetrics {
	return &AppMetrics{
		Classifications:     noopCounterVec{},
		NormInferences:      noopCounterVec{},
		ReportBuilds:        noopHistogramVec{},
		ReportJobs:          noopCounterVec{},
		CitationCacheHits:   noopCounterVec{},
		CitationLookups:     noopHistogramVec{},
		HTTPRequestsTotal:   noopCounterVec{},
		HTTPRequestDuration: noopHistogramVec{},
		HTTPInFlight:        noopGaugeVec{},
		GRPCRequestsTotal:   noopCounterVec{},
		GRPCRequestDuration: noopHistogramVec{},
		WorkerMessages:      noopCounterVec{},
	}
}
