package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// --- Mock Services ---

type mockReportService struct {
	mock.Mock
}

func (m *mockReportService) Preview(ctx context.Context, ev *evaluation.Evaluation) (*reporting.Report, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Report), args.Error(1)
}

func (m *mockReportService) Submit(ctx context.Context, ev *evaluation.Evaluation, format reporting.Format) (*reporting.Job, error) {
	args := m.Called(ctx, ev, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Job), args.Error(1)
}

func (m *mockReportService) Process(ctx context.Context, id uuid.UUID) (*reporting.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Job), args.Error(1)
}

func (m *mockReportService) GetJob(ctx context.Context, id uuid.UUID) (*reporting.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Job), args.Error(1)
}

func (m *mockReportService) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *reporting.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*reporting.Job), args.Error(2)
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, q opensearch.EntryQuery) (*opensearch.EntryResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*opensearch.EntryResult), args.Error(1)
}

// --- Helpers ---

var testJobID = uuid.MustParse("3a8e2f54-9c1b-4e7d-8f20-6b5d4c3a2b10")

func newReportRouter(h *ReportHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/reports/preview", h.Preview)
	r.Post("/reports", h.Submit)
	r.Get("/reports/search", h.Search)
	r.Get("/reports/{id}", h.Get)
	r.Get("/reports/{id}/download", h.Download)
	return r
}

func evaluationBody(t *testing.T) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(testutil.SampleEvaluation())
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func sampleReport(t *testing.T) *reporting.Report {
	t.Helper()
	b := reporting.NewBuilder(citation.MustBuiltin(), reporting.WithClock(testutil.FixedClock()))
	rep, err := b.Build(context.Background(), testutil.SampleEvaluation(), reporting.ModePreview)
	require.NoError(t, err)
	return rep
}

func pendingJob() *reporting.Job {
	return &reporting.Job{
		ID:           testJobID,
		EvaluationID: testutil.SampleEvaluationID,
		Status:       reporting.JobPending,
		Format:       reporting.FormatMarkdown,
		CreatedAt:    testutil.FixedTime,
		UpdatedAt:    testutil.FixedTime,
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func serve(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

// --- Preview ---

func TestPreview_DefaultsToJSON(t *testing.T) {
	svc := new(mockReportService)
	svc.On("Preview", mock.Anything, mock.MatchedBy(func(ev *evaluation.Evaluation) bool {
		return ev.Subject == "J. Doe" && len(ev.Tests) == 6
	})).Return(sampleReport(t), nil)

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodPost, "/reports/preview", evaluationBody(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var rep reporting.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Len(t, rep.Sections, 5)
	svc.AssertExpectations(t)
}

func TestPreview_Markdown(t *testing.T) {
	svc := new(mockReportService)
	svc.On("Preview", mock.Anything, mock.Anything).Return(sampleReport(t), nil)

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodPost, "/reports/preview?format=markdown", evaluationBody(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Grip Strength")
}

func TestPreview_InvalidFormat(t *testing.T) {
	svc := new(mockReportService)
	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodPost, "/reports/preview?format=pdf", evaluationBody(t))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.ErrCodeReportFormatInvalid), decodeError(t, rec).Code)
	svc.AssertNotCalled(t, "Preview", mock.Anything, mock.Anything)
}

func TestPreview_BadBody(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"malformed":     `{"subject":`,
		"unknown field": `{"subject":"x","tests":[],"patient":"y"}`,
		"two values":    `{"subject":"x"} {"subject":"y"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			svc := new(mockReportService)
			rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodPost, "/reports/preview", strings.NewReader(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(errors.CodeInvalidParam), decodeError(t, rec).Code)
		})
	}
}

func TestPreview_BodyTooLarge(t *testing.T) {
	svc := new(mockReportService)
	h := NewReportHandler(svc, nil, WithMaxBodySize(16))
	rec := serve(newReportRouter(h), http.MethodPost, "/reports/preview", evaluationBody(t))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPreview_ValidationError(t *testing.T) {
	svc := new(mockReportService)
	svc.On("Preview", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeEvaluationNoTest, "evaluation contains no tests"))

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodPost, "/reports/preview",
		strings.NewReader(`{"subject":"x","tests":[]}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(errors.ErrCodeEvaluationNoTest), resp.Code)
	assert.Equal(t, "evaluation contains no tests", resp.Message)
}

// --- Submit / Get ---

func TestSubmit_Accepted(t *testing.T) {
	svc := new(mockReportService)
	svc.On("Submit", mock.Anything, mock.Anything, reporting.FormatMarkdown).Return(pendingJob(), nil)

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodPost, "/reports?format=md", evaluationBody(t))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/v1/reports/"+testJobID.String(), rec.Header().Get("Location"))
	var job reporting.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, testJobID, job.ID)
	assert.Equal(t, reporting.JobPending, job.Status)
	svc.AssertExpectations(t)
}

func TestSubmit_DefaultFormatIsText(t *testing.T) {
	svc := new(mockReportService)
	svc.On("Submit", mock.Anything, mock.Anything, reporting.FormatText).Return(pendingJob(), nil)

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodPost, "/reports", evaluationBody(t))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertExpectations(t)
}

func TestSubmit_PublishFailureIsMasked(t *testing.T) {
	svc := new(mockReportService)
	svc.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Wrap(io.ErrUnexpectedEOF, errors.ErrCodeReportPublishFailed, "failed to enqueue report job").WithDetail("broker=kafka-0"))
	log := testutil.NewMockLogger()

	rec := serve(newReportRouter(NewReportHandler(svc, log)), http.MethodPost, "/reports", evaluationBody(t))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(errors.ErrCodeReportPublishFailed), resp.Code)
	assert.Empty(t, resp.Detail)
	assert.True(t, log.HasMessage("error", "request failed"))
}

func TestGet(t *testing.T) {
	svc := new(mockReportService)
	svc.On("GetJob", mock.Anything, testJobID).Return(pendingJob(), nil)

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodGet, "/reports/"+testJobID.String(), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestGet_Errors(t *testing.T) {
	svc := new(mockReportService)
	unknown := uuid.New()
	svc.On("GetJob", mock.Anything, unknown).
		Return(nil, errors.New(errors.ErrCodeReportJobNotFound, "report job not found"))
	router := newReportRouter(NewReportHandler(svc, nil))

	rec := serve(router, http.MethodGet, "/reports/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodGet, "/reports/"+unknown.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.ErrCodeReportJobNotFound), decodeError(t, rec).Code)
}

// --- Download ---

func TestDownload(t *testing.T) {
	svc := new(mockReportService)
	job := pendingJob()
	job.Status = reporting.JobCompleted
	svc.On("Download", mock.Anything, testJobID).
		Return(io.NopCloser(strings.NewReader("# FCE Report\n")), job, nil)

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodGet, "/reports/"+testJobID.String()+"/download", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="fce-report-`+testJobID.String()+`.md"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "# FCE Report\n", rec.Body.String())
}

func TestDownload_NotReady(t *testing.T) {
	svc := new(mockReportService)
	svc.On("Download", mock.Anything, testJobID).
		Return(nil, nil, errors.New(errors.ErrCodeReportNotReady, "report is not ready"))

	rec := serve(newReportRouter(NewReportHandler(svc, nil)), http.MethodGet, "/reports/"+testJobID.String()+"/download", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- Search ---

func TestSearch_Disabled(t *testing.T) {
	h := NewReportHandler(new(mockReportService), nil)
	assert.False(t, h.SearchEnabled())

	rec := serve(newReportRouter(h), http.MethodGet, "/reports/search?q=grip", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch_PassesFilters(t *testing.T) {
	s := new(mockSearcher)
	want := opensearch.EntryQuery{Text: "grip", Section: "Strength", TestID: "grip-strength", From: 20, Size: 10}
	s.On("Search", mock.Anything, want).Return(&opensearch.EntryResult{
		Total:    1,
		Hits:     []opensearch.EntryHit{{ID: "j-0", Document: opensearch.EntryDocument{TestID: "grip-strength"}}},
		Sections: map[string]int64{"Strength": 1},
	}, nil)
	h := NewReportHandler(new(mockReportService), nil, WithSearcher(s))

	rec := serve(newReportRouter(h), http.MethodGet,
		"/reports/search?q=grip&section=Strength&testId=grip-strength&from=20&size=10", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var res opensearch.EntryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, "grip-strength", res.Hits[0].Document.TestID)
	s.AssertExpectations(t)
}

func TestSearch_BadPaging(t *testing.T) {
	h := NewReportHandler(new(mockReportService), nil, WithSearcher(new(mockSearcher)))
	rec := serve(newReportRouter(h), http.MethodGet, "/reports/search?from=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewReportHandler_NilServicePanics(t *testing.T) {
	assert.Panics(t, func() { NewReportHandler(nil, nil) })
}
