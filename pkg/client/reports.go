package client

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// PreviewReport builds a draft report for ev without queueing anything.
func (c *Client) PreviewReport(ctx context.Context, ev *evaluation.Evaluation) (*reporting.Report, error) {
	var rep reporting.Report
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		path:      "/reports/preview",
		query:     url.Values{"format": {string(reporting.FormatJSON)}},
		body:      ev,
		retryable: true,
	}, &rep)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// RenderPreview returns the draft report for ev rendered in format.
func (c *Client) RenderPreview(ctx context.Context, ev *evaluation.Evaluation, format reporting.Format) ([]byte, error) {
	resp, err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/reports/preview",
		query:     url.Values{"format": {string(format)}},
		body:      ev,
		retryable: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// SubmitReport queues a final report. It is sent once: a retry after a lost
// answer could queue a second job.
func (c *Client) SubmitReport(ctx context.Context, ev *evaluation.Evaluation, format reporting.Format) (*reporting.Job, error) {
	var job reporting.Job
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/reports",
		query:  url.Values{"format": {string(format)}},
		body:   ev,
	}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) GetReport(ctx context.Context, id uuid.UUID) (*reporting.Job, error) {
	var job reporting.Job
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/reports/" + id.String(), retryable: true}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Artifact is a downloaded report.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
}

// DownloadReport fetches the artefact of a completed job. A job that is not
// finished yet answers an APIError with IsNotReady.
func (c *Client) DownloadReport(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/reports/" + id.String() + "/download", retryable: true})
	if err != nil {
		return nil, err
	}
	a := &Artifact{Data: resp.body, ContentType: resp.contentType}
	if _, params, err := mime.ParseMediaType(resp.header.Get("Content-Disposition")); err == nil {
		a.Filename = params["filename"]
	}
	return a, nil
}

// SearchReports runs a full-text search over indexed report entries.
func (c *Client) SearchReports(ctx context.Context, q opensearch.EntryQuery) (*opensearch.EntryResult, error) {
	if q.From < 0 || q.Size < 0 {
		return nil, errors.InvalidParam("from and size must not be negative")
	}
	params := url.Values{}
	set := func(k, v string) {
		if v != "" {
			params.Set(k, v)
		}
	}
	set("q", q.Text)
	set("section", q.Section)
	set("testId", q.TestID)
	set("evaluationId", q.EvaluationID)
	set("normCategory", q.NormCategory)
	if q.From > 0 {
		params.Set("from", strconv.Itoa(q.From))
	}
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}

	var res opensearch.EntryResult
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/reports/search", query: params, retryable: true}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CitationView is a citation with its rendered bibliography line.
type CitationView struct {
	citation.Citation
	Text string `json:"text"`
}

// Citations lists the references backing the norms of testID.
func (c *Client) Citations(ctx context.Context, testID string) ([]CitationView, error) {
	var out struct {
		Citations []CitationView `json:"citations"`
	}
	err := c.doJSON(ctx, request{
		method:    http.MethodGet,
		path:      "/citations/" + url.PathEscape(testID),
		retryable: true,
	}, &out)
	return out.Citations, err
}
