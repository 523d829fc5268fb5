// Package reporting turns an evaluation into a sectioned report. Preview and
// final reports are produced by the same Builder; they differ only in the
// mode label they carry.
package reporting

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// ============================================================================
// Enums
// ============================================================================

// Mode labels where a report was produced.
type Mode string

const (
	ModePreview Mode = "preview"
	ModeFinal   Mode = "final"
)

func (m Mode) Valid() bool { return m == ModePreview || m == ModeFinal }

// Format is a rendering target.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names case-insensitively; "" means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatMarkdown, FormatJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", errors.New(errors.ErrCodeReportFormatInvalid, "unsupported report format").WithDetail("format=" + s)
	}
}

// ContentType is the MIME type of a rendered report.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension is the file extension used for stored artefacts.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatMarkdown:
		return ".md"
	default:
		return ".txt"
	}
}

// ============================================================================
// Report model
// ============================================================================

// Report is the assembled output for one evaluation.
type Report struct {
	EvaluationID uuid.UUID            `json:"evaluationId"`
	Subject      string               `json:"subject"`
	Examiner     string               `json:"examiner,omitempty"`
	PerformedAt  time.Time            `json:"performedAt"`
	Mode         Mode                 `json:"mode"`
	GeneratedAt  time.Time            `json:"generatedAt"`
	Sections     []SectionBlock       `json:"sections"`
	References   []*citation.Citation `json:"references"`
}

// SectionBlock is one report section. Every report carries all five, in
// display order, empty or not.
type SectionBlock struct {
	Section fce.Section `json:"section"`
	Entries []Entry     `json:"entries"`
}

// Entry is one test line.
type Entry struct {
	Test        fce.TestRecord         `json:"test"`
	Section     fce.Section            `json:"-"`
	RuleID      string                 `json:"ruleId"`
	Norms       fce.NormInfo           `json:"norms"`
	Observed    evaluation.Measurement `json:"observed"`
	Comparison  string                 `json:"comparison"`
	Result      string                 `json:"result"`
	CitationIDs []string               `json:"citationIds,omitempty"`
}

// EntryCount is the number of entries across all sections.
func (r *Report) EntryCount() int {
	n := 0
	for _, s := range r.Sections {
		n += len(s.Entries)
	}
	return n
}

// Section returns the block for s.
func (r *Report) Section(s fce.Section) *SectionBlock {
	for i := range r.Sections {
		if r.Sections[i].Section == s {
			return &r.Sections[i]
		}
	}
	return nil
}

// ============================================================================
// Comparison text
// ============================================================================

const notAvailable = "N/A"

// FormatComparison renders norms as "<left> (L) | <right> (R) <unit>". A
// missing side prints as N/A and an empty unit is omitted.
func FormatComparison(n fce.NormInfo) string {
	return formatPair(n.Left, n.Right, n.Unit)
}

// FormatMeasurement renders an observed result the same way as its norms.
func FormatMeasurement(m evaluation.Measurement) string {
	return formatPair(m.Left, m.Right, m.Unit)
}

func formatPair(left, right *float64, unit string) string {
	s := formatValue(left) + " (L) | " + formatValue(right) + " (R)"
	if unit != "" {
		s += " " + unit
	}
	return s
}

func formatValue(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
