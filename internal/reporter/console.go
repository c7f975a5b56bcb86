package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"sql-guard/internal/model"
)

type ConsoleReporter struct {
	out     io.Writer
	ShowSQL bool
}

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out, ShowSQL: true}
}

func (r *ConsoleReporter) Report(findings []model.Finding) error {
	rejected := 0
	for _, f := range findings {
		if f.Report.Passed {
			continue
		}
		rejected++

		// Format: file:line: [SEVERITY] CODE, CODE
		fmt.Fprintf(r.out, "%s: [%s] %s\n",
			f.Segment.Location,
			severityColor(f.Report.OverallSeverity).Sprint(strings.ToUpper(string(f.Report.OverallSeverity))),
			strings.Join(f.Report.Violations, ", "),
		)
		if r.ShowSQL && f.Segment.SQL != "" {
			fmt.Fprintf(r.out, "\tCode: %s\n", color.CyanString(truncate(oneLine(f.Segment.SQL), 80)))
		}
		for _, c := range f.Report.Failed() {
			fmt.Fprintf(r.out, "\t%s %s: %s\n",
				severityColor(c.Severity).Sprint(c.ViolationCode), c.Name, c.Details)
		}
		fmt.Fprintln(r.out)
	}

	if rejected == 0 {
		fmt.Fprintln(r.out, color.GreenString("✔ All %d SQL templates passed.", len(findings)))
		return nil
	}
	fmt.Fprintf(r.out, "%s %d of %d SQL templates rejected.\n", color.RedString("✘"), rejected, len(findings))
	return nil
}

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case model.SeverityHigh:
		return color.New(color.FgRed)
	case model.SeverityMedium:
		return color.New(color.FgYellow, color.Bold)
	case model.SeverityLow:
		return color.New(color.FgBlue, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
