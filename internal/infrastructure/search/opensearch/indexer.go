package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// ReportEntriesIndex is the unprefixed name of the entry index.
const ReportEntriesIndex = "report-entries"

// EntryDocument is the indexed form of one report entry.
type EntryDocument struct {
	JobID         string    `json:"jobId"`
	EvaluationID  string    `json:"evaluationId"`
	Subject       string    `json:"subject"`
	Section       string    `json:"section"`
	RuleID        string    `json:"ruleId"`
	TestID        string    `json:"testId"`
	TestName      string    `json:"testName"`
	Category      string    `json:"category,omitempty"`
	NormUnit      string    `json:"normUnit,omitempty"`
	NormLeft      *float64  `json:"normLeft,omitempty"`
	NormRight     *float64  `json:"normRight,omitempty"`
	NormCategory  string    `json:"normCategory"`
	ObservedLeft  *float64  `json:"observedLeft,omitempty"`
	ObservedRight *float64  `json:"observedRight,omitempty"`
	Comparison    string    `json:"comparison"`
	Result        string    `json:"result,omitempty"`
	CitationIDs   []string  `json:"citationIds,omitempty"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// EntryDocuments flattens rep into one document per entry, in section
// order. Document ids are "<jobID>-<ordinal>" so reindexing a job
// overwrites its previous documents.
func EntryDocuments(job *reporting.Job, rep *reporting.Report) (ids []string, docs []EntryDocument) {
	for _, block := range rep.Sections {
		for _, e := range block.Entries {
			ids = append(ids, fmt.Sprintf("%s-%d", job.ID, len(docs)))
			docs = append(docs, EntryDocument{
				JobID:         job.ID.String(),
				EvaluationID:  rep.EvaluationID.String(),
				Subject:       rep.Subject,
				Section:       block.Section.String(),
				RuleID:        e.RuleID,
				TestID:        e.Test.TestID,
				TestName:      e.Test.TestName,
				Category:      e.Test.Category,
				NormUnit:      e.Norms.Unit,
				NormLeft:      e.Norms.Left,
				NormRight:     e.Norms.Right,
				NormCategory:  string(e.Norms.Category),
				ObservedLeft:  e.Observed.Left,
				ObservedRight: e.Observed.Right,
				Comparison:    e.Comparison,
				Result:        e.Result,
				CitationIDs:   e.CitationIDs,
				GeneratedAt:   rep.GeneratedAt.UTC(),
			})
		}
	}
	return ids, docs
}

// ReportIndexer writes completed reports to the entry index. It
// implements reporting.Indexer.
type ReportIndexer struct {
	client  *Client
	index   string
	refresh string
	logger  logging.Logger
}

type IndexerOption func(*ReportIndexer)

// WithRefresh sets the bulk refresh policy: "true", "false" or "wait_for".
func WithRefresh(policy string) IndexerOption {
	return func(i *ReportIndexer) { i.refresh = policy }
}

func NewReportIndexer(client *Client, logger logging.Logger, opts ...IndexerOption) *ReportIndexer {
	if logger == nil {
		logger = client.logger
	}
	i := &ReportIndexer{
		client:  client,
		index:   client.IndexName(ReportEntriesIndex),
		refresh: "false",
		logger:  logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Index is the full name of the entry index.
func (i *ReportIndexer) Index() string { return i.index }

// EnsureIndex creates the entry index with its mapping unless it exists.
func (i *ReportIndexer) EnsureIndex(ctx context.Context) error {
	exists, err := i.indexExists(ctx)
	if err != nil || exists {
		return err
	}

	body, err := json.Marshal(entryIndexMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	resp, err := opensearchapi.IndicesCreateRequest{
		Index: i.index,
		Body:  bytes.NewReader(body),
	}.Do(ctx, i.client.transport())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "failed to create index").WithDetail("index=" + i.index)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		err := responseError(resp, "index creation failed")
		// Another replica created it between the check and the create.
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return err
	}
	i.logger.Info("Index created", logging.String("index", i.index))
	return nil
}

func (i *ReportIndexer) indexExists(ctx context.Context) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client.transport())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeSearchError, "failed to check index").WithDetail("index=" + i.index)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, responseError(resp, "index existence check failed")
	}
}

// IndexReport bulk-indexes every entry of rep. Items the cluster rejects
// fail the whole call so the report worker logs them.
func (i *ReportIndexer) IndexReport(ctx context.Context, job *reporting.Job, rep *reporting.Report) error {
	ids, docs := EntryDocuments(job, rep)
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for n, doc := range docs {
		meta := map[string]map[string]string{"index": {"_index": i.index, "_id": ids[n]}}
		if err := enc.Encode(meta); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
		}
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode entry document").WithDetail("id=" + ids[n])
		}
	}

	resp, err := opensearchapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: i.refresh,
	}.Do(ctx, i.client.transport())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportIndexFailed, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return errors.Wrap(responseError(resp, "bulk request rejected"), errors.ErrCodeReportIndexFailed, "bulk request rejected")
	}

	var result bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if failed := result.failures(); len(failed) > 0 {
		return errors.New(errors.ErrCodeReportIndexFailed, "some report entries were not indexed").
			WithDetail(fmt.Sprintf("job_id=%s failed=%d first=%s", job.ID, len(failed), failed[0]))
	}

	i.logger.Debug("Report indexed",
		logging.JobID(job.ID.String()),
		logging.Int("entries", len(docs)),
		logging.Int("took_ms", result.Took))
	return nil
}

// DeleteJob removes every document of jobID.
func (i *ReportIndexer) DeleteJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{"jobId": jobID.String()}},
	})
	refresh := i.refresh == "true" || i.refresh == "wait_for"
	resp, err := opensearchapi.DeleteByQueryRequest{
		Index:   []string{i.index},
		Body:    bytes.NewReader(body),
		Refresh: &refresh,
	}.Do(ctx, i.client.transport())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSearchError, "delete by query failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.IsError() {
		return 0, responseError(resp, "delete by query rejected")
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode delete response")
	}
	return out.Deleted, nil
}

type bulkResponse struct {
	Took   int  `json:"took"`
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

func (r *bulkResponse) failures() []string {
	if !r.Errors {
		return nil
	}
	var out []string
	for _, item := range r.Items {
		for _, res := range item {
			if res.Error != nil || res.Status >= 300 {
				reason := fmt.Sprintf("%s:%d", res.ID, res.Status)
				if res.Error != nil {
					reason += " " + res.Error.Type
				}
				out = append(out, reason)
			}
		}
	}
	return out
}

// entryIndexMapping keeps identifiers and labels as keywords so they can be
// filtered and aggregated; test names are analysed for free-text search.
func entryIndexMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	double := map[string]interface{}{"type": "double"}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"dynamic": "strict",
			"properties": map[string]interface{}{
				"jobId":        keyword,
				"evaluationId": keyword,
				"subject":      map[string]interface{}{"type": "text", "fields": map[string]interface{}{"raw": keyword}},
				"section":      keyword,
				"ruleId":       keyword,
				"testId":       keyword,
				"testName": map[string]interface{}{
					"type":   "text",
					"fields": map[string]interface{}{"raw": keyword},
				},
				"category":      keyword,
				"normUnit":      keyword,
				"normLeft":      double,
				"normRight":     double,
				"normCategory":  keyword,
				"observedLeft":  double,
				"observedRight": double,
				"comparison":    map[string]interface{}{"type": "text", "index": false},
				"result":        keyword,
				"citationIds":   keyword,
				"generatedAt":   map[string]interface{}{"type": "date"},
			},
		},
	}
}
