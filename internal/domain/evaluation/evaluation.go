// Package evaluation models one functional capacity evaluation: the person
// examined and the tests performed on them.
package evaluation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// Measurement is an observed result. A side is nil when it was not measured.
type Measurement struct {
	Left  *float64 `json:"left,omitempty"`
	Right *float64 `json:"right,omitempty"`
	Unit  string   `json:"unit,omitempty"`
}

// Measured reports whether any side was recorded.
func (m Measurement) Measured() bool { return m.Left != nil || m.Right != nil }

// PerformedTest is a test record plus what was observed.
type PerformedTest struct {
	fce.TestRecord
	Observed Measurement `json:"observed"`
}

// Evaluation is the aggregate a report is built from.
type Evaluation struct {
	ID          uuid.UUID       `json:"id"`
	Subject     string          `json:"subject"`
	Examiner    string          `json:"examiner,omitempty"`
	PerformedAt time.Time       `json:"performedAt"`
	Tests       []PerformedTest `json:"tests"`
}

// NewEvaluation creates an evaluation with a fresh id.
func NewEvaluation(subject, examiner string, performedAt time.Time, tests ...PerformedTest) *Evaluation {
	return &Evaluation{
		ID:          uuid.New(),
		Subject:     subject,
		Examiner:    examiner,
		PerformedAt: performedAt.UTC(),
		Tests:       tests,
	}
}

// EnsureID assigns an id to evaluations decoded from requests without one.
func (e *Evaluation) EnsureID() {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
}

// Validate checks the evaluation can be reported on. Individual test records
// need no validation: the engine accepts any record, including empty ones.
func (e *Evaluation) Validate() error {
	if e == nil {
		return errors.Validation("evaluation is required")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return errors.Validation("evaluation subject is required")
	}
	if len(e.Tests) == 0 {
		return errors.New(errors.ErrCodeEvaluationNoTest, "evaluation contains no tests").
			WithDetail("id=" + e.ID.String())
	}
	return nil
}

// Records returns the engine inputs in test order.
func (e *Evaluation) Records() []fce.TestRecord {
	out := make([]fce.TestRecord, len(e.Tests))
	for i, t := range e.Tests {
		out[i] = t.TestRecord
	}
	return out
}

// TestIDs returns the distinct non-empty test ids in first-seen order.
func (e *Evaluation) TestIDs() []string {
	seen := make(map[string]struct{}, len(e.Tests))
	var ids []string
	for _, t := range e.Tests {
		if t.TestID == "" {
			continue
		}
		if _, ok := seen[t.TestID]; ok {
			continue
		}
		seen[t.TestID] = struct{}{}
		ids = append(ids, t.TestID)
	}
	return ids
}
