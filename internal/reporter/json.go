package reporter

import (
	"encoding/json"
	"io"
	"os"

	"sql-guard/internal/model"
)

// JSONReporter writes one object per finding. The SQL text is omitted
// unless IncludeSQL is set.
type JSONReporter struct {
	out        io.Writer
	IncludeSQL bool
}

func NewJSONReporter(out io.Writer) *JSONReporter {
	if out == nil {
		out = os.Stdout
	}
	return &JSONReporter{out: out}
}

type jsonFinding struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Language string `json:"language,omitempty"`
	SQL      string `json:"sql,omitempty"`
	model.ValidationReport
}

func (r *JSONReporter) Report(findings []model.Finding) error {
	out := make([]jsonFinding, 0, len(findings))
	for _, f := range findings {
		jf := jsonFinding{
			File:             f.Segment.Location.FilePath,
			Line:             f.Segment.Location.Line,
			Language:         f.Segment.Language,
			ValidationReport: f.Report,
		}
		if r.IncludeSQL {
			jf.SQL = f.Segment.SQL
		}
		out = append(out, jf)
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
