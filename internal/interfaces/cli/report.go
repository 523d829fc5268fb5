package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FCE-Intelligence/pkg/client"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// NewReportCmd creates the report command group.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Preview, queue and fetch evaluation reports",
		Long: "Preview renders a report immediately and works without a server. The other\n" +
			"subcommands talk to the asynchronous report pipeline and need --server.",
	}
	cmd.AddCommand(
		newReportPreviewCmd(),
		newReportSubmitCmd(),
		newReportStatusCmd(),
		newReportDownloadCmd(),
		newReportSearchCmd(),
		newReportVerifyCmd(),
	)
	return cmd
}

func parseJobID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CodeInvalidParam, "report id must be a UUID").WithDetail("id=" + arg)
	}
	return id, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// preview
// ─────────────────────────────────────────────────────────────────────────────

func newReportPreviewCmd() *cobra.Command {
	var (
		file   string
		format string
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a preview report for an evaluation",
		Example: `  fcectl report preview --file evaluation.yaml
  fcectl report preview --file evaluation.json --format markdown > report.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.InvalidParam("--file is required")
			}
			f, err := reporting.ParseFormat(format)
			if err != nil {
				return err
			}
			ev, err := readEvaluation(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			data, err := cliCtx.Backend.Preview(ctx, ev, f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "evaluation file, JSON or YAML (- for stdin)")
	cmd.Flags().StringVar(&format, "format", string(reporting.FormatText), "report format (text, markdown, json)")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// submit / status
// ─────────────────────────────────────────────────────────────────────────────

type jobView struct{ *reporting.Job }

func (j jobView) TableHeaders() []string {
	return []string{"ID", "EVALUATION", "STATUS", "FORMAT", "ATTEMPTS", "UPDATED"}
}

func (j jobView) TableRows() [][]string {
	return [][]string{{
		j.ID.String(), j.EvaluationID.String(), statusText(j.Status), string(j.Format),
		strconv.Itoa(j.Attempts), j.UpdatedAt.Format(time.RFC3339),
	}}
}

func (j jobView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Report:     %s\n", j.ID)
	fmt.Fprintf(w, "Evaluation: %s\n", j.EvaluationID)
	fmt.Fprintf(w, "Status:     %s\n", statusText(j.Status))
	fmt.Fprintf(w, "Format:     %s\n", j.Format)
	if j.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", j.Error)
	}
}

func statusText(s reporting.JobStatus) string {
	switch s {
	case reporting.JobCompleted:
		return okColor.Sprint(s)
	case reporting.JobFailed:
		return failColor.Sprint(s)
	default:
		return warnColor.Sprint(s)
	}
}

func newReportSubmitCmd() *cobra.Command {
	var (
		file   string
		format string
	)
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Queue a final report for an evaluation",
		Example: `  fcectl --server http://localhost:8080 report submit --file evaluation.yaml --format markdown`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.InvalidParam("--file is required")
			}
			f, err := reporting.ParseFormat(format)
			if err != nil {
				return err
			}
			ev, err := readEvaluation(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			c, err := cliCtx.RequireClient("report submit")
			if err != nil {
				return err
			}

			job, err := c.SubmitReport(ctx, ev, f)
			if err != nil {
				return err
			}
			return PrintResult(cmd, jobView{job})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "evaluation file, JSON or YAML (- for stdin)")
	cmd.Flags().StringVar(&format, "format", string(reporting.FormatText), "report format (text, markdown, json)")
	return cmd
}

func newReportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <report-id>",
		Short: "Show the state of a queued report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			c, err := cliCtx.RequireClient("report status")
			if err != nil {
				return err
			}

			job, err := c.GetReport(ctx, id)
			if err != nil {
				return err
			}
			return PrintResult(cmd, jobView{job})
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// download
// ─────────────────────────────────────────────────────────────────────────────

func newReportDownloadCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "download <report-id>",
		Short: "Download a completed report",
		Long: "Download writes the artefact to stdout, or to --out. When --out is a\n" +
			"directory the server's file name is used.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			c, err := cliCtx.RequireClient("report download")
			if err != nil {
				return err
			}

			art, err := c.DownloadReport(ctx, id)
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.IsNotReady() {
					return errors.New(errors.ErrCodeReportNotReady, "report is not ready yet").
						WithDetail("id=" + id.String()).WithCause(err)
				}
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(art.Data)
				return err
			}
			return writeArtifact(cmd, outPath, art)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file or directory")
	return cmd
}

func writeArtifact(cmd *cobra.Command, outPath string, art *client.Artifact) error {
	target := outPath
	if info, err := os.Stat(outPath); err == nil && info.IsDir() {
		name := art.Filename
		if name == "" {
			name = "report"
		}
		target = filepath.Join(outPath, filepath.Base(name))
	}
	if err := os.WriteFile(target, art.Data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "cannot write report").WithDetail("path=" + target)
	}
	PrintSuccess(cmd, fmt.Sprintf("wrote %d bytes to %s", len(art.Data), target))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// search
// ─────────────────────────────────────────────────────────────────────────────

type searchView struct{ *opensearch.EntryResult }

func (s searchView) TableHeaders() []string {
	return []string{"SCORE", "SUBJECT", "SECTION", "TEST", "NORMS", "RESULT"}
}

func (s searchView) TableRows() [][]string {
	rows := make([][]string, len(s.Hits))
	for i, h := range s.Hits {
		d := h.Document
		rows[i] = []string{strconv.FormatFloat(h.Score, 'f', 2, 64), d.Subject, d.Section, d.TestName, d.Comparison, d.Result}
	}
	return rows
}

func (s searchView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%d matching entries\n", s.Total)
	labels := make([]string, 0, len(s.Sections))
	for label := range s.Sections {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(w, "  %s: %d\n", sectionColor.Sprint(label), s.Sections[label])
	}
	for _, h := range s.Hits {
		d := h.Document
		fmt.Fprintf(w, "%s  %s  %s  %s\n", d.Subject, d.Section, strconv.Quote(d.TestName), d.Comparison)
	}
}

func newReportSearchCmd() *cobra.Command {
	q := opensearch.EntryQuery{}
	cmd := &cobra.Command{
		Use:     "search [text]",
		Short:   "Search the entries of completed reports",
		Example: `  fcectl --server http://localhost:8080 report search grip --section Strength`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Text = args[0]
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			c, err := cliCtx.RequireClient("report search")
			if err != nil {
				return err
			}

			res, err := c.SearchReports(ctx, q)
			if err != nil {
				return err
			}
			return PrintResult(cmd, searchView{res})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Section, "section", "", "restrict to one section label")
	f.StringVar(&q.TestID, "test-id", "", "restrict to one test id")
	f.StringVar(&q.EvaluationID, "evaluation", "", "restrict to one evaluation id")
	f.StringVar(&q.NormCategory, "norm-category", "", "restrict to a norm category (strength, rom, cardio, other)")
	f.IntVar(&q.From, "from", 0, "offset of the first hit")
	f.IntVar(&q.Size, "size", 20, "page size")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// verify
// ─────────────────────────────────────────────────────────────────────────────

type parityResult struct {
	Checked    int               `json:"checked"`
	Mismatches []client.Mismatch `json:"mismatches"`
}

func (p parityResult) TableHeaders() []string {
	return []string{"#", "TEST NAME", "FIELD", "LOCAL", "REMOTE"}
}

func (p parityResult) TableRows() [][]string {
	rows := make([][]string, len(p.Mismatches))
	for i, m := range p.Mismatches {
		rows[i] = []string{strconv.Itoa(m.Index), m.Record.TestName, m.Field, m.Local, m.Remote}
	}
	return rows
}

func (p parityResult) WriteText(w io.Writer) {
	if len(p.Mismatches) == 0 {
		fmt.Fprintf(w, "%s server agrees with the local engine on %d records\n", okColor.Sprint("OK:"), p.Checked)
		return
	}
	fmt.Fprintf(w, "%s %d disagreements over %d records\n", failColor.Sprint("DRIFT:"), len(p.Mismatches), p.Checked)
	for _, m := range p.Mismatches {
		fmt.Fprintln(w, "  "+m.String())
	}
}

func newReportVerifyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the server classifies and infers norms like this binary",
		Long: "Verify sends the records in --file to the server and compares every section,\n" +
			"rule and norm with the engine compiled into fcectl. It exits non-zero on drift.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.InvalidParam("--file is required")
			}
			records, err := readRecords(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			c, err := cliCtx.RequireClient("report verify")
			if err != nil {
				return err
			}

			mismatches, err := c.VerifyParity(ctx, records)
			if err != nil {
				return err
			}
			res := parityResult{Checked: len(records), Mismatches: mismatches}
			if res.Mismatches == nil {
				res.Mismatches = []client.Mismatch{}
			}
			if err := PrintResult(cmd, res); err != nil {
				return err
			}
			if len(mismatches) > 0 {
				return errors.New(errors.ErrCodeConflict, "server and local engine disagree").
					WithDetail(fmt.Sprintf("mismatches=%d", len(mismatches)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "records or evaluation file, JSON or YAML (- for stdin)")
	return cmd
}
