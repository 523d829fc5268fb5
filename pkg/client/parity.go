package client

import (
	"context"
	"fmt"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// Mismatch is a record on which the server and the local engine disagree.
type Mismatch struct {
	Index  int            `json:"index"`
	Record fce.TestRecord `json:"record"`
	// Field is "decision" or "norms".
	Field  string `json:"field"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("#%d %q %s: local=%s remote=%s", m.Index, m.Record.TestName, m.Field, m.Local, m.Remote)
}

// VerifyParity classifies records and infers their norms on the server, then
// compares every answer with the local pkg/fce engine. An empty result means
// the server runs the same rules.
func (c *Client) VerifyParity(ctx context.Context, records []fce.TestRecord) ([]Mismatch, error) {
	if len(records) == 0 {
		return nil, nil
	}

	remote, err := c.Classify(ctx, records)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.TestName
	}
	norms, err := c.InferNorms(ctx, names...)
	if err != nil {
		return nil, err
	}
	if len(remote) != len(records) || len(norms) != len(records) {
		return nil, errors.New(errors.ErrCodeInternal, "server answer does not match the request").
			WithDetail(fmt.Sprintf("classifications=%d norms=%d records=%d", len(remote), len(norms), len(records)))
	}

	var out []Mismatch
	for i, rec := range records {
		if local, got := fce.Explain(rec), remote[i].Decision(); local != got {
			out = append(out, Mismatch{
				Index: i, Record: rec, Field: "decision",
				Local: describeDecision(local), Remote: describeDecision(got),
			})
		}
		if local := fce.InferNorms(rec.TestName); !local.Equal(norms[i].Norms) {
			out = append(out, Mismatch{
				Index: i, Record: rec, Field: "norms",
				Local: describeNorms(local), Remote: describeNorms(norms[i].Norms),
			})
		}
	}
	return out, nil
}

func describeDecision(d fce.Decision) string {
	return fmt.Sprintf("%s (%s)", d.Section, d.RuleID)
}

func describeNorms(n fce.NormInfo) string {
	side := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%g", *v)
	}
	return fmt.Sprintf("%s/%s %s [%s]", side(n.Left), side(n.Right), n.Unit, n.Category)
}
