package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// EntryQuery filters indexed report entries. Empty fields do not filter.
type EntryQuery struct {
	Text         string `json:"text,omitempty"`
	Section      string `json:"section,omitempty"`
	TestID       string `json:"testId,omitempty"`
	EvaluationID string `json:"evaluationId,omitempty"`
	NormCategory string `json:"normCategory,omitempty"`
	From         int    `json:"from,omitempty"`
	Size         int    `json:"size,omitempty"`
}

type EntryHit struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Document EntryDocument `json:"document"`
}

// EntryResult is one page of hits plus per-section counts over the whole
// match set.
type EntryResult struct {
	Total    int64            `json:"total"`
	Hits     []EntryHit       `json:"hits"`
	Sections map[string]int64 `json:"sections"`
}

type ReportSearcher struct {
	client *Client
	index  string
	logger logging.Logger
}

func NewReportSearcher(client *Client, logger logging.Logger) *ReportSearcher {
	if logger == nil {
		logger = client.logger
	}
	return &ReportSearcher{client: client, index: client.IndexName(ReportEntriesIndex), logger: logger}
}

// Search runs q against the entry index. A missing index yields an empty
// result.
func (s *ReportSearcher) Search(ctx context.Context, q EntryQuery) (*EntryResult, error) {
	if q.From < 0 {
		return nil, errors.InvalidParam("from must be >= 0")
	}
	body, err := json.Marshal(buildEntryQuery(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal search body")
	}

	resp, err := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.transport())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchError, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &EntryResult{Hits: []EntryHit{}, Sections: map[string]int64{}}, nil
	}
	if resp.IsError() {
		return nil, responseError(resp, "search rejected")
	}

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	out := &EntryResult{
		Total:    raw.Hits.Total.Value,
		Hits:     make([]EntryHit, 0, len(raw.Hits.Hits)),
		Sections: make(map[string]int64, len(raw.Aggregations.Sections.Buckets)),
	}
	for _, h := range raw.Hits.Hits {
		out.Hits = append(out.Hits, EntryHit{ID: h.ID, Score: h.Score, Document: h.Source})
	}
	for _, b := range raw.Aggregations.Sections.Buckets {
		out.Sections[b.Key] = b.DocCount
	}
	s.logger.Debug("Entry search",
		logging.String("text", q.Text),
		logging.Int64("total", out.Total),
		logging.Int("returned", len(out.Hits)))
	return out, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string        `json:"_id"`
			Score  float64       `json:"_score"`
			Source EntryDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Sections struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"sections"`
	} `json:"aggregations"`
}

// buildEntryQuery renders q as query DSL. Text matches the analysed test
// name; the other fields are exact keyword filters.
func buildEntryQuery(q EntryQuery) map[string]interface{} {
	size := q.Size
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}

	var must []interface{}
	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"testName^2", "subject", "testId"},
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	var filter []interface{}
	for _, f := range [][2]string{
		{"section", q.Section},
		{"testId", q.TestID},
		{"evaluationId", q.EvaluationID},
		{"normCategory", q.NormCategory},
	} {
		if f[1] != "" {
			filter = append(filter, map[string]interface{}{"term": map[string]interface{}{f[0]: f[1]}})
		}
	}

	boolQuery := map[string]interface{}{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	return map[string]interface{}{
		"from":             q.From,
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"generatedAt": map[string]interface{}{"order": "desc"}},
		},
		"aggs": map[string]interface{}{
			"sections": map[string]interface{}{"terms": map[string]interface{}{"field": "section", "size": 5}},
		},
	}
}
