package reporting_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

func sampleReport(t *testing.T, mode reporting.Mode) *reporting.Report {
	t.Helper()
	rep, err := newTestBuilder(t).Build(context.Background(), testutil.SampleEvaluation(), mode)
	require.NoError(t, err)
	return rep
}

func TestRenderer_Text(t *testing.T) {
	rep := sampleReport(t, reporting.ModePreview)
	out, err := reporting.NewRenderer().RenderBytes(rep, reporting.FormatText)
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "FUNCTIONAL CAPACITY EVALUATION (PREVIEW)\n"))
	assert.Contains(t, text, "Subject:   J. Doe")
	assert.Contains(t, text, "Examiner:  A. Therapist, OT")
	assert.Contains(t, text, "Generated: 2024-03-14 09:30 UTC")

	headings := []string{
		"== Strength ==",
		"== ROM Total Spine/Extremity ==",
		"== ROM Hand/Foot ==",
		"== Occupational Tasks ==",
		"== Cardio ==",
		"REFERENCES",
	}
	last := -1
	for _, h := range headings {
		i := strings.Index(text, h)
		require.GreaterOrEqual(t, i, 0, h)
		assert.Greater(t, i, last, "%q out of order", h)
		last = i
	}

	assert.Contains(t, text, "110.5 (L) | 120.8 (R) lb")
	assert.Contains(t, text, "[1] "+rep.References[0].String())
	assert.Contains(t, text, "[7] "+rep.References[6].String())
}

func TestRenderer_Text_EmptySection(t *testing.T) {
	ev := testutil.SampleEvaluation()
	ev.Tests = ev.Tests[:1]
	rep, err := newTestBuilder(t).Build(context.Background(), ev, reporting.ModeFinal)
	require.NoError(t, err)

	out, err := reporting.NewRenderer().RenderBytes(rep, reporting.FormatText)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(out), "(no tests)"))
}

func TestRenderer_Markdown(t *testing.T) {
	rep := sampleReport(t, reporting.ModeFinal)
	out, err := reporting.NewRenderer().RenderBytes(rep, reporting.FormatMarkdown)
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "# Functional Capacity Evaluation (final)\n"))
	assert.Contains(t, md, "## ROM Hand/Foot")
	assert.Contains(t, md, "## References")
	assert.Contains(t, md, `110.5 (L) \| 120.8 (R) lb`)
	assert.Contains(t, md, "1. "+rep.References[0].String())

	// Every table row has the same number of unescaped separators.
	for _, line := range strings.Split(md, "\n") {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		cells := strings.Count(strings.ReplaceAll(line, `\|`, ""), "|")
		assert.Equal(t, 6, cells, line)
	}
}

func TestRenderer_JSON(t *testing.T) {
	rep := sampleReport(t, reporting.ModeFinal)
	out, err := reporting.NewRenderer().RenderBytes(rep, reporting.FormatJSON)
	require.NoError(t, err)

	var doc struct {
		Mode     string `json:"mode"`
		Sections []struct {
			Section string `json:"section"`
			Entries []struct {
				RuleID      string   `json:"ruleId"`
				Comparison  string   `json:"comparison"`
				CitationIDs []string `json:"citationIds"`
			} `json:"entries"`
		} `json:"sections"`
		References []struct {
			ID string `json:"id"`
		} `json:"references"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))

	assert.Equal(t, "final", doc.Mode)
	require.Len(t, doc.Sections, 5)
	assert.Equal(t, "Strength", doc.Sections[0].Section)
	assert.Equal(t, "ROM Total Spine/Extremity", doc.Sections[1].Section)
	assert.Equal(t, "Cardio", doc.Sections[4].Section)
	assert.Equal(t, "strength-keyword", doc.Sections[0].Entries[0].RuleID)
	assert.Len(t, doc.References, 7)
}

func TestRenderer_Errors(t *testing.T) {
	r := reporting.NewRenderer()

	err := r.Render(&bytes.Buffer{}, nil, reporting.FormatText)
	assert.True(t, errors.IsCode(err, errors.ErrCodeReportRenderFailed))

	err = r.Render(&bytes.Buffer{}, sampleReport(t, reporting.ModeFinal), reporting.Format("pdf"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeReportFormatInvalid))
}
