package reporting

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

var entryHeader = []string{"Test", "Result", "Norm", "Norm Category", "Refs"}

// Renderer writes reports as text, markdown or JSON.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// Render writes rep to w in format f.
func (r *Renderer) Render(w io.Writer, rep *Report, f Format) error {
	if rep == nil {
		return errors.New(errors.ErrCodeReportRenderFailed, "report is nil")
	}
	bw := bufio.NewWriter(w)
	var err error
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(bw)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	case FormatMarkdown:
		r.renderMarkdown(bw, rep)
	case FormatText, "":
		r.renderText(bw, rep)
	default:
		return errors.New(errors.ErrCodeReportFormatInvalid, "unsupported report format").WithDetail("format=" + string(f))
	}
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportRenderFailed, "failed to render report")
	}
	return nil
}

// RenderBytes is Render into a buffer.
func (r *Renderer) RenderBytes(rep *Report, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, rep, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderText(w io.Writer, rep *Report) {
	fmt.Fprintf(w, "FUNCTIONAL CAPACITY EVALUATION (%s)\n", strings.ToUpper(string(rep.Mode)))
	fmt.Fprintf(w, "Subject:   %s\n", rep.Subject)
	if rep.Examiner != "" {
		fmt.Fprintf(w, "Examiner:  %s\n", rep.Examiner)
	}
	fmt.Fprintf(w, "Performed: %s\n", rep.PerformedAt.Format("2006-01-02"))
	fmt.Fprintf(w, "Generated: %s\n", rep.GeneratedAt.Format("2006-01-02 15:04 MST"))

	refs := referenceNumbers(rep)
	for _, s := range rep.Sections {
		fmt.Fprintf(w, "\n== %s ==\n", s.Section)
		if len(s.Entries) == 0 {
			fmt.Fprintln(w, "(no tests)")
			continue
		}
		table := tablewriter.NewWriter(w)
		table.SetHeader(entryHeader)
		table.SetAutoWrapText(false)
		table.AppendBulk(entryRows(s, refs))
		table.Render()
	}

	if len(rep.References) > 0 {
		fmt.Fprintln(w, "\nREFERENCES")
		for i, c := range rep.References {
			fmt.Fprintf(w, "[%d] %s\n", i+1, c)
		}
	}
}

func (r *Renderer) renderMarkdown(w io.Writer, rep *Report) {
	fmt.Fprintf(w, "# Functional Capacity Evaluation (%s)\n\n", rep.Mode)
	fmt.Fprintf(w, "- **Subject:** %s\n", rep.Subject)
	if rep.Examiner != "" {
		fmt.Fprintf(w, "- **Examiner:** %s\n", rep.Examiner)
	}
	fmt.Fprintf(w, "- **Performed:** %s\n", rep.PerformedAt.Format("2006-01-02"))
	fmt.Fprintf(w, "- **Generated:** %s\n", rep.GeneratedAt.Format("2006-01-02 15:04 MST"))

	refs := referenceNumbers(rep)
	for _, s := range rep.Sections {
		fmt.Fprintf(w, "\n## %s\n\n", s.Section)
		if len(s.Entries) == 0 {
			fmt.Fprintln(w, "_No tests._")
			continue
		}
		table := tablewriter.NewWriter(w)
		table.SetHeader(entryHeader)
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
		table.AppendBulk(escapePipes(entryRows(s, refs)))
		table.Render()
	}

	if len(rep.References) > 0 {
		fmt.Fprint(w, "\n## References\n\n")
		for i, c := range rep.References {
			fmt.Fprintf(w, "%d. %s\n", i+1, c)
		}
	}
}

// escapePipes keeps "L | R" comparisons from splitting markdown cells.
func escapePipes(rows [][]string) [][]string {
	for _, row := range rows {
		for i, cell := range row {
			row[i] = strings.ReplaceAll(cell, "|", `\|`)
		}
	}
	return rows
}

func referenceNumbers(rep *Report) map[string]int {
	out := make(map[string]int, len(rep.References))
	for i, c := range rep.References {
		out[c.ID] = i + 1
	}
	return out
}

func entryRows(s SectionBlock, refs map[string]int) [][]string {
	rows := make([][]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		name := e.Test.TestName
		if name == "" {
			name = e.Test.TestID
		}
		nums := make([]string, 0, len(e.CitationIDs))
		for _, id := range e.CitationIDs {
			if n, ok := refs[id]; ok {
				nums = append(nums, strconv.Itoa(n))
			}
		}
		result := e.Result
		if !e.Observed.Measured() {
			result = "-"
		}
		rows = append(rows, []string{name, result, e.Comparison, string(e.Norms.Category), strings.Join(nums, ",")})
	}
	return rows
}
