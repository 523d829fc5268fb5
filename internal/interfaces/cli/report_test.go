package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

func writeEvaluation(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(testutil.SampleEvaluation())
	require.NoError(t, err)
	return writeFile(t, "evaluation.json", string(data))
}

const evaluationYAML = `
subject: R. Roe
performedAt: 2024-03-12T09:30:00Z
tests:
  - testName: Grip Strength
    testId: grip-strength
    observed: {left: 98, right: 104.5, unit: lb}
  - testName: Bruce Treadmill Test
`

func TestReportPreview_Local(t *testing.T) {
	path := writeEvaluation(t)

	out, err := execute(t, "", "report", "preview", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "J. Doe")
	assert.Contains(t, out, "Grip Strength")

	out, err = execute(t, "", "report", "preview", "--file", path, "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "## Strength")
	assert.Contains(t, out, "## Cardio")
}

func TestReportPreview_YAMLFromStdin(t *testing.T) {
	out, err := execute(t, evaluationYAML, "report", "preview", "-f", "-", "--format", "json")
	require.NoError(t, err)

	var rep reporting.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "R. Roe", rep.Subject)
	assert.Equal(t, reporting.ModePreview, rep.Mode)
	assert.Equal(t, 2, rep.EntryCount())
}

func TestReportPreview_Remote(t *testing.T) {
	srv := newServer(t)
	out, err := execute(t, "", "--server", srv.url, "report", "preview", "--file", writeEvaluation(t), "--format", "json")
	require.NoError(t, err)

	var rep reporting.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, testutil.SampleEvaluationID, rep.EvaluationID)
	assert.Equal(t, testutil.FixedTime, rep.GeneratedAt.UTC())
}

func TestReportPreview_Rejections(t *testing.T) {
	_, err := execute(t, "", "report", "preview")
	assert.Equal(t, errors.CodeInvalidParam, errors.GetCode(err))

	_, err = execute(t, "", "report", "preview", "--file", writeEvaluation(t), "--format", "pdf")
	assert.Error(t, err)

	_, err = execute(t, `{"subject":"X","tests":[]}`, "report", "preview", "-f", "-")
	assert.Equal(t, errors.ErrCodeEvaluationNoTest, errors.GetCode(err))
}

func TestReportCommands_NeedServer(t *testing.T) {
	path := writeEvaluation(t)
	id := testutil.SampleEvaluationID.String()
	for _, args := range [][]string{
		{"report", "submit", "--file", path},
		{"report", "status", id},
		{"report", "download", id},
		{"report", "search", "grip"},
		{"report", "verify", "--file", path},
	} {
		_, err := execute(t, "", args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "--server", args)
	}
}

func TestReportLifecycle(t *testing.T) {
	srv := newServer(t)
	path := writeEvaluation(t)

	out, err := execute(t, "", "--server", srv.url, "-o", "json", "report", "submit", "--file", path)
	require.NoError(t, err)
	var job reporting.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, reporting.JobPending, job.Status)
	assert.Equal(t, reporting.FormatText, job.Format)
	id := job.ID.String()

	out, err = execute(t, "", "--server", srv.url, "report", "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Report:     "+id)
	assert.Contains(t, out, string(reporting.JobPending))

	_, err = execute(t, "", "--server", srv.url, "report", "download", id)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeReportNotReady, errors.GetCode(err))

	_, err = srv.svc.Process(context.Background(), job.ID)
	require.NoError(t, err)

	out, err = execute(t, "", "--server", srv.url, "-o", "table", "report", "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, string(reporting.JobCompleted))

	out, err = execute(t, "", "--server", srv.url, "report", "download", id)
	require.NoError(t, err)
	assert.Contains(t, out, "J. Doe")

	dir := t.TempDir()
	out, err = execute(t, "", "--server", srv.url, "report", "download", id, "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "OK: wrote")
	data, err := os.ReadFile(filepath.Join(dir, "fce-report-"+id+".txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "J. Doe")
}

func TestReportStatus_BadID(t *testing.T) {
	srv := newServer(t)
	_, err := execute(t, "", "--server", srv.url, "report", "status", "not-a-uuid")
	assert.Equal(t, errors.CodeInvalidParam, errors.GetCode(err))
}

func TestReportSearch_Disabled(t *testing.T) {
	srv := newServer(t)
	_, err := execute(t, "", "--server", srv.url, "report", "search", "grip", "--section", "Strength")
	assert.Error(t, err)
}

func TestReportVerify(t *testing.T) {
	srv := newServer(t)
	out, err := execute(t, "", "--server", srv.url, "report", "verify", "--file", writeEvaluation(t))
	require.NoError(t, err)
	assert.Contains(t, out, "OK: server agrees with the local engine on 6 records")

	out, err = execute(t, "", "--server", srv.url, "-o", "json", "report", "verify", "--file", writeEvaluation(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{"checked":6,"mismatches":[]}`, out)
}
