package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// EntrySearcher finds indexed report entries.
type EntrySearcher interface {
	Search(ctx context.Context, q opensearch.EntryQuery) (*opensearch.EntryResult, error)
}

// ReportHandler serves report previews and the asynchronous report jobs.
type ReportHandler struct {
	svc         reporting.Service
	renderer    *reporting.Renderer
	searcher    EntrySearcher
	maxBodySize int64
	logger      logging.Logger
}

type ReportHandlerOption func(*ReportHandler)

// WithSearcher enables GET /reports/search.
func WithSearcher(s EntrySearcher) ReportHandlerOption {
	return func(h *ReportHandler) { h.searcher = s }
}

func WithMaxBodySize(n int64) ReportHandlerOption {
	return func(h *ReportHandler) { h.maxBodySize = n }
}

func NewReportHandler(svc reporting.Service, logger logging.Logger, opts ...ReportHandlerOption) *ReportHandler {
	if svc == nil {
		panic("nil reporting.Service injected into ReportHandler")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &ReportHandler{svc: svc, renderer: reporting.NewRenderer(), logger: logger.Named("reports")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SearchEnabled reports whether a searcher was configured.
func (h *ReportHandler) SearchEnabled() bool { return h.searcher != nil }

// Preview handles POST /api/v1/reports/preview?format=. The report is built
// synchronously and never stored. JSON is the default format here.
func (h *ReportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	format := reporting.FormatJSON
	if raw := r.URL.Query().Get("format"); raw != "" {
		f, err := reporting.ParseFormat(raw)
		if err != nil {
			writeAppError(w, h.logger, err)
			return
		}
		format = f
	}

	var ev evaluation.Evaluation
	if err := decodeJSON(w, r, h.maxBodySize, &ev); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	rep, err := h.svc.Preview(r.Context(), &ev)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, rep, format); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Submit handles POST /api/v1/reports?format=. It answers 202 with the
// pending job and a Location header pointing at its status.
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	format, err := reporting.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	var ev evaluation.Evaluation
	if err := decodeJSON(w, r, h.maxBodySize, &ev); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	job, err := h.svc.Submit(r.Context(), &ev, format)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/reports/"+job.ID.String())
	writeJSON(w, http.StatusAccepted, job)
}

// Get handles GET /api/v1/reports/{id}.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Download handles GET /api/v1/reports/{id}/download. Jobs that have not
// completed answer 409.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	body, job, err := h.svc.Download(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", job.Format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="fce-report-%s%s"`, job.ID, job.Format.Extension()))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("report download interrupted", logging.JobID(job.ID.String()), logging.Err(err))
	}
}

// Search handles GET /api/v1/reports/search.
func (h *ReportHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		writeAppError(w, h.logger, errors.NotFound("report search is not enabled"))
		return
	}
	q := r.URL.Query()
	from, err := queryInt(r, "from", 0)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	size, err := queryInt(r, "size", 0)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	res, err := h.searcher.Search(r.Context(), opensearch.EntryQuery{
		Text:         q.Get("q"),
		Section:      q.Get("section"),
		TestID:       q.Get("testId"),
		EvaluationID: q.Get("evaluationId"),
		NormCategory: q.Get("normCategory"),
		From:         from,
		Size:         size,
	})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func jobID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.InvalidParam("report id must be a UUID").WithDetail(raw)
	}
	return id, nil
}
