package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// Classification is the server's answer for one record.
type Classification struct {
	TestID   string      `json:"testId"`
	TestName string      `json:"testName"`
	Section  fce.Section `json:"section"`
	RuleID   string      `json:"ruleId"`
}

// Decision returns the section and rule without the echoed record.
func (c Classification) Decision() fce.Decision {
	return fce.Decision{Section: c.Section, RuleID: c.RuleID}
}

type NormResult struct {
	Name  string       `json:"name"`
	Norms fce.NormInfo `json:"norms"`
}

type SectionInfo struct {
	Order int         `json:"order"`
	Label fce.Section `json:"label"`
}

type RuleInfo struct {
	Order       int    `json:"order"`
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Classify classifies a batch of records; results are in input order. The
// server rejects an empty batch with ErrCodeEmptyBatch. The engine endpoints
// are pure, so these calls are retried like reads.
func (c *Client) Classify(ctx context.Context, records []fce.TestRecord) ([]Classification, error) {
	if records == nil {
		records = []fce.TestRecord{}
	}
	var out struct {
		Results []Classification `json:"results"`
	}
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		path:      "/classify",
		body:      map[string]interface{}{"records": records},
		retryable: true,
	}, &out)
	return out.Results, err
}

// ClassifyOne classifies a single record.
func (c *Client) ClassifyOne(ctx context.Context, rec fce.TestRecord) (*Classification, error) {
	var out Classification
	err := c.doJSON(ctx, request{method: http.MethodPost, path: "/classify", body: rec, retryable: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InferNorms infers norms for each name, in input order.
func (c *Client) InferNorms(ctx context.Context, names ...string) ([]NormResult, error) {
	if len(names) == 1 {
		var one NormResult
		err := c.doJSON(ctx, request{
			method:    http.MethodGet,
			path:      "/norms",
			query:     url.Values{"name": {names[0]}},
			retryable: true,
		}, &one)
		if err != nil {
			return nil, err
		}
		return []NormResult{one}, nil
	}

	var out struct {
		Results []NormResult `json:"results"`
	}
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		path:      "/norms",
		body:      map[string]interface{}{"names": names},
		retryable: true,
	}, &out)
	return out.Results, err
}

// Group partitions records into the five sections, in display order.
func (c *Client) Group(ctx context.Context, records []fce.TestRecord) ([]fce.Group[fce.TestRecord], error) {
	if records == nil {
		records = []fce.TestRecord{}
	}
	var out struct {
		Groups []fce.Group[fce.TestRecord] `json:"groups"`
	}
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		path:      "/group",
		body:      map[string]interface{}{"records": records},
		retryable: true,
	}, &out)
	return out.Groups, err
}

func (c *Client) Sections(ctx context.Context) ([]SectionInfo, error) {
	var out struct {
		Sections []SectionInfo `json:"sections"`
	}
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/sections", retryable: true}, &out)
	return out.Sections, err
}

// Rules lists the classification rules in evaluation order.
func (c *Client) Rules(ctx context.Context) ([]RuleInfo, error) {
	var out struct {
		Rules []RuleInfo `json:"rules"`
	}
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/rules", retryable: true}, &out)
	return out.Rules, err
}
