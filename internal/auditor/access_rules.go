package auditor

import (
	"fmt"
	"strings"

	"sql-guard/internal/model"
	"sql-guard/internal/parser"
)

var systemSchemas = map[string]bool{
	"information_schema": true,
	"pg_catalog":         true,
	"pg_toast":           true,
	"mysql":              true,
	"performance_schema": true,
	"sys":                true,
}

var systemTables = map[string]bool{
	"information_schema": true,
	"sqlite_master":      true,
	"sqlite_schema":      true,
}

func isSystemSchema(name string) bool {
	return systemSchemas[name] || strings.HasPrefix(name, "pg_temp")
}

func isSystemTable(ref parser.TableRef) bool {
	return isSystemSchema(ref.Schema) || systemTables[ref.Base] || strings.HasPrefix(ref.Base, "pg_")
}

func tableAllowed(vctx *model.ValidationContext, ref parser.TableRef) bool {
	return model.Has(vctx.AllowedTables, ref.Name) || model.Has(vctx.AllowedTables, ref.Base)
}

// TableRule restricts FROM/JOIN targets to the allowed tables and rejects
// system catalogs wherever they are referenced.
type TableRule struct{}

func (r *TableRule) Name() model.CheckName { return model.CheckTableWhitelist }

func (r *TableRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for _, ref := range scan.Tables {
		if ref.CTE {
			continue
		}
		if isSystemTable(ref) {
			return model.Fail(r.Name(), model.SeverityHigh, model.CodeTable,
				fmt.Sprintf("system catalog %s", ref.Name))
		}
		if !tableAllowed(vctx, ref) {
			return model.Fail(r.Name(), model.SeverityHigh, model.CodeTable,
				fmt.Sprintf("table %s is not allowed", ref.Name))
		}
	}
	for i, t := range scan.Tokens {
		if !t.IsIdent() || scan.At(i+1).Kind != parser.Dot || scan.At(i-1).Kind == parser.Dot {
			continue
		}
		if isSystemSchema(t.Lower()) {
			return model.Fail(r.Name(), model.SeverityHigh, model.CodeTable,
				fmt.Sprintf("system catalog %s referenced at offset %d", t.Lower(), t.Pos))
		}
	}
	return model.Pass(r.Name())
}

// PIIRule rejects any identifier naming a denylisted column, however it is
// qualified, quoted or cased.
type PIIRule struct{}

func (r *PIIRule) Name() model.CheckName { return model.CheckColumnWhitelist }

func (r *PIIRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for i, t := range scan.Tokens {
		if t.Kind != parser.Word && t.Kind != parser.QuotedIdent {
			continue
		}
		if scan.IsTableToken(i) {
			continue
		}
		if model.Has(vctx.PIIColumns, t.Text) {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodePII,
				fmt.Sprintf("PII column %s", t.Lower()))
		}
	}
	for _, g := range scan.Glued {
		if model.Has(vctx.PIIColumns, g.Text) {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodePII,
				fmt.Sprintf("PII column %s split by a comment", strings.ToLower(g.Text)))
		}
	}
	return model.Pass(r.Name())
}

var dangerousFunctions = map[string]bool{
	"pg_sleep": true, "benchmark": true, "sleep": true, "xp_cmdshell": true,
	"dblink": true, "dblink_exec": true, "dblink_connect": true,
	"lo_export": true, "lo_import": true, "pg_read_file": true,
	"pg_read_binary_file": true, "pg_ls_dir": true, "pg_stat_file": true,
	"pg_file_write": true, "copy": true, "load_file": true,
	"sys_exec": true, "sys_eval": true,
}

// FunctionRule requires every called function to be whitelisted. Schema
// qualified calls must be whitelisted under their full name.
type FunctionRule struct{}

func (r *FunctionRule) Name() model.CheckName { return model.CheckFunctionWhitelist }

func (r *FunctionRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for _, call := range scan.Calls {
		if dangerousFunctions[call.Base] || dangerousFunctions[call.Name] {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodeFunction,
				fmt.Sprintf("dangerous function %s", call.Name))
		}
	}
	for _, call := range scan.Calls {
		if !model.Has(vctx.FunctionWhitelist, call.Name) {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodeFunction,
				fmt.Sprintf("function %s is not whitelisted", call.Name))
		}
	}
	return model.Pass(r.Name())
}

// JoinRule requires every JOIN to target an allowed table and to carry an
// ON or USING condition.
type JoinRule struct{}

func (r *JoinRule) Name() model.CheckName { return model.CheckJoinSafety }

func (r *JoinRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for _, j := range scan.Joins {
		if !j.Subquery {
			switch {
			case j.Target.Name == "":
				return model.Fail(r.Name(), model.SeverityHigh, model.CodeJoin,
					fmt.Sprintf("%s without a target at offset %d", j.Kind, j.Pos))
			case j.Target.CTE:
			case isSystemTable(j.Target) || !tableAllowed(vctx, j.Target):
				return model.Fail(r.Name(), model.SeverityHigh, model.CodeJoin,
					fmt.Sprintf("%s target %s is not allowed", j.Kind, j.Target.Name))
			}
		}
		if !j.HasCondition {
			return model.Fail(r.Name(), model.SeverityHigh, model.CodeJoin,
				fmt.Sprintf("%s without ON or USING at offset %d", j.Kind, j.Pos))
		}
	}
	return model.Pass(r.Name())
}
