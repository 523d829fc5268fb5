package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
)

type routerFixture struct {
	handler http.Handler
	svc     reporting.Service
	logger  *testutil.MockLogger
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := testutil.NewMockLogger()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "fce_router"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	svc := reporting.NewService(reporting.ServiceDeps{
		Builder:   reporting.NewBuilder(citation.MustBuiltin(), reporting.WithClock(testutil.FixedClock())),
		Jobs:      testutil.NewJobStore(),
		Publisher: &testutil.Publisher{},
		Store:     testutil.NewArtifactStore(),
		Clock:     testutil.FixedClock(),
	})

	h := NewRouter(RouterConfig{
		EngineHandler:   handlers.NewEngineHandler(handlers.EngineConfig{Workers: 2}, metrics, logger),
		CitationHandler: handlers.NewCitationHandler(citation.MustBuiltin(), logger),
		ReportHandler:   handlers.NewReportHandler(svc, logger),
		HealthHandler:   handlers.NewHealthHandler("test"),
		Logger:          logger,
		Metrics:         metrics,
		MetricsHandler:  collector.Handler(),
		CORSOrigins:     []string{"https://portal.example.com"},
	})
	return &routerFixture{handler: h, svc: svc, logger: logger}
}

func (f *routerFixture) do(method, target string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_RoutesRegistered(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodPost, "/api/v1/classify", `{"testName":"Grip Strength"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/group", `{"records":[]}`, http.StatusOK},
		{http.MethodGet, "/api/v1/norms?name=Grip", "", http.StatusOK},
		{http.MethodPost, "/api/v1/norms", `{"names":["Grip"]}`, http.StatusOK},
		{http.MethodGet, "/api/v1/sections", "", http.StatusOK},
		{http.MethodGet, "/api/v1/rules", "", http.StatusOK},
		{http.MethodGet, "/api/v1/citations/grip-strength", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/search?q=grip", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/reports/" + uuid.NewString(), "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/reports/not-a-uuid", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/classify", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			rec := f.do(tt.method, tt.target, body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestNewRouter_ReportLifecycle(t *testing.T) {
	f := newRouterFixture(t)

	payload, err := json.Marshal(testutil.SampleEvaluation())
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/v1/reports?format=md", bytes.NewReader(payload))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job reporting.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "/api/v1/reports/"+job.ID.String(), rec.Header().Get("Location"))

	rec = f.do(http.MethodGet, "/api/v1/reports/"+job.ID.String()+"/download", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err = f.svc.Process(context.Background(), job.ID)
	require.NoError(t, err)

	rec = f.do(http.MethodGet, "/api/v1/reports/"+job.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, reporting.JobCompleted, job.Status)

	rec = f.do(http.MethodGet, "/api/v1/reports/"+job.ID.String()+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reporting.FormatMarkdown.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Grip Strength")
}

func TestNewRouter_Preview(t *testing.T) {
	f := newRouterFixture(t)
	payload, err := json.Marshal(testutil.SampleEvaluation())
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/v1/reports/preview", bytes.NewReader(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep reporting.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.NotEmpty(t, rep.Sections)
}

func TestNewRouter_MiddlewareApplied(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/sections", nil, "Origin", "https://portal.example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://portal.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, f.logger.HasMessage("info", "HTTP request completed"))

	rec = f.do(http.MethodOptions, "/api/v1/classify", nil,
		"Origin", "https://portal.example.com",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fce_router_http_requests_total{method="GET",route="/api/v1/sections",status="200"} 1`)
}

func TestNewRouter_NilHandlers(t *testing.T) {
	var h http.Handler
	require.NotPanics(t, func() { h = NewRouter(RouterConfig{}) })

	for _, target := range []string{"/healthz", "/metrics", "/api/v1/rules", "/api/v1/reports/preview"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}
