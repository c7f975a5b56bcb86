package auditor

import (
	"fmt"

	"sql-guard/internal/model"
	"sql-guard/internal/parser"
)

// Auditor runs the fixed battery of checks over a candidate. It holds no
// per-call state and is safe for concurrent use.
type Auditor struct {
	rules []model.Rule
}

// New returns an Auditor with the twelve checks in report order.
func New() *Auditor {
	return &Auditor{
		rules: []model.Rule{
			&InjectionRule{},
			&UnionRule{},
			&CommentRule{},
			&TenantRule{},
			&TableRule{},
			&PIIRule{},
			&FunctionRule{},
			&RowLimitRule{},
			&TimeWindowRule{},
			&NestingRule{},
			&JoinRule{},
			&ExfiltrationRule{},
		},
	}
}

// primaryCode is the code reported when a check cannot complete.
var primaryCode = map[model.CheckName]string{
	model.CheckSQLInjection:        model.CodeInjection,
	model.CheckUnionInjection:      model.CodeUnion,
	model.CheckCommentStripping:    model.CodeComment,
	model.CheckTenantIsolation:     model.CodeTenantMissing,
	model.CheckTableWhitelist:      model.CodeTable,
	model.CheckColumnWhitelist:     model.CodePII,
	model.CheckFunctionWhitelist:   model.CodeFunction,
	model.CheckRowLimit:            model.CodeLimitMissing,
	model.CheckTimeWindowLimit:     model.CodeTimeWindow,
	model.CheckNestedQueryDepth:    model.CodeNesting,
	model.CheckJoinSafety:          model.CodeJoin,
	model.CheckExfiltrationPattern: model.CodeExfiltration,
}

// Validate runs every check against sql, without short-circuiting, and
// aggregates the results. It never panics: a check that cannot complete is
// reported as a critical failure of that check.
func (a *Auditor) Validate(sql string, vctx *model.ValidationContext) model.ValidationReport {
	if vctx == nil {
		vctx = &model.ValidationContext{}
	}

	scan, err := safeParse(sql)
	results := make([]model.CheckResult, 0, len(a.rules))
	for _, rule := range a.rules {
		if err != nil {
			results = append(results, model.Fail(rule.Name(), model.SeverityCritical, primaryCode[rule.Name()], err.Error()))
			continue
		}
		results = append(results, runRule(rule, scan, vctx))
	}
	return Aggregate(results)
}

// Audit validates every segment against vctx and pairs each with its report.
func (a *Auditor) Audit(segments []model.SQLSegment, vctx *model.ValidationContext) []model.Finding {
	findings := make([]model.Finding, 0, len(segments))
	for _, seg := range segments {
		findings = append(findings, model.Finding{Segment: seg, Report: a.Validate(seg.SQL, vctx)})
	}
	return findings
}

// Aggregate builds a report from check results in order.
func Aggregate(results []model.CheckResult) model.ValidationReport {
	report := model.ValidationReport{
		Checks:          results,
		Violations:      []string{},
		OverallSeverity: model.SeverityNone,
	}
	for i, res := range results {
		if res.Passed {
			results[i].Severity = model.SeverityNone
			results[i].ViolationCode = ""
			continue
		}
		if res.ViolationCode == "" {
			results[i].ViolationCode = primaryCode[res.Name]
		}
		if res.Severity.Rank() == 0 {
			results[i].Severity = model.SeverityCritical
		}
		report.Violations = append(report.Violations, results[i].ViolationCode)
		if results[i].Severity.Rank() > report.OverallSeverity.Rank() {
			report.OverallSeverity = results[i].Severity
		}
	}
	report.Passed = len(report.Violations) == 0
	return report
}

func runRule(rule model.Rule, scan *parser.Scan, vctx *model.ValidationContext) (res model.CheckResult) {
	defer func() {
		if p := recover(); p != nil {
			res = model.Fail(rule.Name(), model.SeverityCritical, primaryCode[rule.Name()], fmt.Sprintf("check aborted: %v", p))
		}
	}()
	res = rule.Check(scan, vctx)
	res.Name = rule.Name()
	return res
}

func safeParse(sql string) (scan *parser.Scan, err error) {
	defer func() {
		if p := recover(); p != nil {
			scan, err = nil, fmt.Errorf("scan aborted: %v", p)
		}
	}()
	return parser.Parse(sql), nil
}
