package auditor

import (
	"fmt"

	"sql-guard/internal/model"
	"sql-guard/internal/parser"
)

// exfilWords name file, network and shell primitives across dialects.
var exfilWords = map[string]bool{
	"OUTFILE": true, "DUMPFILE": true, "INFILE": true,
	"PG_READ_FILE": true, "PG_READ_BINARY_FILE": true, "PG_LS_DIR": true,
	"PG_STAT_FILE": true, "PG_FILE_WRITE": true,
	"LO_EXPORT": true, "LO_IMPORT": true, "LO_GET": true, "LO_PUT": true,
	"DBLINK": true, "DBLINK_EXEC": true, "DBLINK_CONNECT": true,
	"LOAD_FILE": true, "XP_CMDSHELL": true, "XP_DIRTREE": true,
	"SYS_EXEC": true, "SYS_EVAL": true,
	"UTL_HTTP": true, "UTL_FILE": true, "UTL_TCP": true, "UTL_SMTP": true,
	"OPENROWSET": true, "OPENDATASOURCE": true, "OPENQUERY": true,
	"HTTP_GET": true, "HTTP_POST": true,
}

// ExfiltrationRule detects server-side file access, bulk export and
// outbound network primitives.
type ExfiltrationRule struct{}

func (r *ExfiltrationRule) Name() model.CheckName { return model.CheckExfiltrationPattern }

func (r *ExfiltrationRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for i, t := range scan.Tokens {
		if details := exfilAt(scan, i, t); details != "" {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodeExfiltration, details)
		}
	}
	for _, g := range scan.Glued {
		if exfilWords[g.Upper] || g.Upper == "COPY" {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodeExfiltration,
				fmt.Sprintf("%s split by a comment at offset %d", g.Upper, g.Pos))
		}
	}
	return model.Pass(r.Name())
}

func exfilAt(scan *parser.Scan, i int, t parser.Token) string {
	if t.Kind != parser.Word {
		return ""
	}
	switch {
	case t.Is("INTO") && (scan.At(i+1).Is("OUTFILE") || scan.At(i+1).Is("DUMPFILE")):
		return fmt.Sprintf("INTO %s at offset %d", scan.At(i+1).Upper, t.Pos)
	case t.Is("LOAD") && scan.At(i+1).Is("DATA"):
		return fmt.Sprintf("LOAD DATA at offset %d", t.Pos)
	case t.Is("COPY"):
		prev := scan.At(i - 1)
		if i == 0 || prev.Kind == parser.Semicolon || prev.Kind == parser.LParen || scan.At(i+1).Kind == parser.LParen {
			return fmt.Sprintf("COPY at offset %d", t.Pos)
		}
		for _, rest := range scan.Tokens[i+1:] {
			if rest.Is("PROGRAM") {
				return fmt.Sprintf("COPY ... PROGRAM at offset %d", rest.Pos)
			}
		}
	case exfilWords[t.Upper]:
		return fmt.Sprintf("%s at offset %d", t.Lower(), t.Pos)
	}
	return ""
}
