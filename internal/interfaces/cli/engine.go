package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/pkg/client"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// ─────────────────────────────────────────────────────────────────────────────
// classify
// ─────────────────────────────────────────────────────────────────────────────

type classifyOptions struct {
	file     string
	category string
	testID   string
}

// ClassificationRow is one classified record.
type ClassificationRow struct {
	TestID   string      `json:"testId"`
	TestName string      `json:"testName"`
	Section  fce.Section `json:"section"`
	RuleID   string      `json:"ruleId"`
}

type classifyResult []ClassificationRow

func (r classifyResult) TableHeaders() []string {
	return []string{"TEST ID", "TEST NAME", "SECTION", "RULE"}
}

func (r classifyResult) TableRows() [][]string {
	rows := make([][]string, len(r))
	for i, c := range r {
		rows[i] = []string{c.TestID, c.TestName, c.Section.String(), c.RuleID}
	}
	return rows
}

func (r classifyResult) WriteText(w io.Writer) {
	for _, c := range r {
		fmt.Fprintf(w, "%s -> %s (%s)\n", displayName(c.TestName, c.TestID), sectionColor.Sprint(c.Section), c.RuleID)
	}
}

func displayName(name, id string) string {
	switch {
	case name != "":
		return strconv.Quote(name)
	case id != "":
		return id
	default:
		return `""`
	}
}

// NewClassifyCmd creates the classify command.
func NewClassifyCmd() *cobra.Command {
	opts := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify [test name...]",
		Short: "Place tests into report sections",
		Long: "Classify test names given as arguments, or the records in --file (a list of\n" +
			"records, {\"records\": [...]}, or an evaluation). Each result names the rule\n" +
			"that decided the section.",
		Example: `  fcectl classify "Grip Strength" "Bruce Treadmill Test"
  fcectl classify --id wrist-rom-flexion "Wrist Flexion"
  fcectl classify --file evaluation.yaml -o table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := opts.records(cmd, args)
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			decisions, err := cliCtx.Backend.Classify(ctx, records)
			if err != nil {
				return err
			}
			out := make(classifyResult, len(records))
			for i, rec := range records {
				out[i] = ClassificationRow{
					TestID:   rec.TestID,
					TestName: rec.TestName,
					Section:  decisions[i].Section,
					RuleID:   decisions[i].RuleID,
				}
			}
			return PrintResult(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSON or YAML input file (- for stdin)")
	cmd.Flags().StringVar(&opts.category, "category", "", "pre-assigned section label applied to every named test")
	cmd.Flags().StringVar(&opts.testID, "id", "", "test id, only with a single test name")
	return cmd
}

func (o *classifyOptions) records(cmd *cobra.Command, args []string) ([]fce.TestRecord, error) {
	if o.file != "" {
		if len(args) > 0 {
			return nil, errors.InvalidParam("give test names or --file, not both")
		}
		return readRecords(o.file, cmd.InOrStdin())
	}
	if len(args) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyBatch, "no tests to classify")
	}
	if o.testID != "" && len(args) > 1 {
		return nil, errors.InvalidParam("--id needs exactly one test name")
	}
	records := make([]fce.TestRecord, len(args))
	for i, name := range args {
		records[i] = fce.TestRecord{TestName: name, TestID: o.testID, Category: o.category}
	}
	return records, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// norms
// ─────────────────────────────────────────────────────────────────────────────

// NormRow pairs a test name with its inferred reference values.
type NormRow struct {
	Name  string       `json:"name"`
	Norms fce.NormInfo `json:"norms"`
}

type normsResult []NormRow

func (r normsResult) TableHeaders() []string {
	return []string{"TEST NAME", "CATEGORY", "UNIT", "LEFT", "RIGHT"}
}

func (r normsResult) TableRows() [][]string {
	rows := make([][]string, len(r))
	for i, n := range r {
		rows[i] = []string{n.Name, string(n.Norms.Category), n.Norms.Unit, optional(n.Norms.Left), optional(n.Norms.Right)}
	}
	return rows
}

func (r normsResult) WriteText(w io.Writer) {
	for _, n := range r {
		fmt.Fprintf(w, "%s [%s] %s\n", strconv.Quote(n.Name), n.Norms.Category, reporting.FormatComparison(n.Norms))
	}
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// NewNormsCmd creates the norms command.
func NewNormsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "norms [test name...]",
		Short: "Infer reference norms for test names",
		Example: `  fcectl norms "Grip Strength" "Lateral Pinch"
  fcectl norms --file evaluation.json -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := normNames(cmd, file, args)
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			norms, err := cliCtx.Backend.InferNorms(ctx, names)
			if err != nil {
				return err
			}
			out := make(normsResult, len(names))
			for i, name := range names {
				out[i] = NormRow{Name: name, Norms: norms[i]}
			}
			return PrintResult(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON or YAML input file whose test names are used (- for stdin)")
	return cmd
}

func normNames(cmd *cobra.Command, file string, args []string) ([]string, error) {
	if file == "" {
		if len(args) == 0 {
			return nil, errors.New(errors.ErrCodeEmptyBatch, "no test names given")
		}
		return args, nil
	}
	if len(args) > 0 {
		return nil, errors.InvalidParam("give test names or --file, not both")
	}
	records, err := readRecords(file, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyBatch, "input contains no tests")
	}
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.TestName
	}
	return names, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// group
// ─────────────────────────────────────────────────────────────────────────────

type groupResult []fce.Group[fce.TestRecord]

func (r groupResult) TableHeaders() []string {
	return []string{"SECTION", "TEST ID", "TEST NAME"}
}

func (r groupResult) TableRows() [][]string {
	var rows [][]string
	for _, g := range r {
		for _, rec := range g.Items {
			rows = append(rows, []string{g.Section.String(), rec.TestID, rec.TestName})
		}
	}
	return rows
}

func (r groupResult) WriteText(w io.Writer) {
	for _, g := range r {
		fmt.Fprintf(w, "%s (%d)\n", sectionColor.Sprint(g.Section), len(g.Items))
		for _, rec := range g.Items {
			fmt.Fprintf(w, "  - %s\n", displayName(rec.TestName, rec.TestID))
		}
	}
}

// NewGroupCmd creates the group command.
func NewGroupCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "group",
		Short:   "Group the records of a file into the five report sections",
		Example: `  fcectl group --file evaluation.yaml`,
		Args:    cobra.NoArgs,
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

			groups, err := cliCtx.Backend.Group(ctx, records)
			if err != nil {
				return err
			}
			return PrintResult(cmd, groupResult(groups))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON or YAML input file (- for stdin)")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// rules / sections
// ─────────────────────────────────────────────────────────────────────────────

type rulesResult []client.RuleInfo

func (r rulesResult) TableHeaders() []string { return []string{"ORDER", "ID", "DESCRIPTION"} }

func (r rulesResult) TableRows() [][]string {
	rows := make([][]string, len(r))
	for i, rule := range r {
		rows[i] = []string{strconv.Itoa(rule.Order), rule.ID, rule.Description}
	}
	return rows
}

func (r rulesResult) WriteText(w io.Writer) {
	for _, rule := range r {
		fmt.Fprintf(w, "%d. %s: %s\n", rule.Order, rule.ID, rule.Description)
	}
}

// NewRulesCmd creates the rules command.
func NewRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the classification rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			rules, err := cliCtx.Backend.Rules(ctx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, rulesResult(rules))
		},
	}
}

type sectionsResult []client.SectionInfo

func (r sectionsResult) TableHeaders() []string { return []string{"ORDER", "LABEL"} }

func (r sectionsResult) TableRows() [][]string {
	rows := make([][]string, len(r))
	for i, s := range r {
		rows[i] = []string{strconv.Itoa(s.Order), s.Label.String()}
	}
	return rows
}

func (r sectionsResult) WriteText(w io.Writer) {
	for _, s := range r {
		fmt.Fprintln(w, s.Label)
	}
}

// NewSectionsCmd creates the sections command. The section set is compiled
// in, so this never contacts a server.
func NewSectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List the report sections in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sections := fce.Sections()
			out := make(sectionsResult, len(sections))
			for i, s := range sections {
				out[i] = client.SectionInfo{Order: i, Label: s}
			}
			return PrintResult(cmd, out)
		},
	}
}
