package model

import (
	"errors"
	"fmt"
	"strings"
)

// Location represents the physical location of a code segment
type Location struct {
	FilePath string
	Line     int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.FilePath, l.Line)
}

// SQLSegment is a SQL template extracted from source code
type SQLSegment struct {
	SQL      string
	Location Location
	Language string // e.g., "go", "python", "sql"
}

// Severity ranks a failed check. The zero value is SeverityNone.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: none < low < medium < high < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// CheckName identifies one of the twelve checks.
type CheckName string

const (
	CheckSQLInjection        CheckName = "sql_injection"
	CheckUnionInjection      CheckName = "union_injection"
	CheckCommentStripping    CheckName = "comment_stripping"
	CheckTenantIsolation     CheckName = "tenant_isolation"
	CheckTableWhitelist      CheckName = "table_whitelist"
	CheckColumnWhitelist     CheckName = "column_whitelist"
	CheckFunctionWhitelist   CheckName = "function_whitelist"
	CheckRowLimit            CheckName = "row_limit"
	CheckTimeWindowLimit     CheckName = "time_window_limit"
	CheckNestedQueryDepth    CheckName = "nested_query_depth"
	CheckJoinSafety          CheckName = "join_safety"
	CheckExfiltrationPattern CheckName = "exfiltration_pattern"
)

// CheckOrder is the fixed order of checks in every report.
var CheckOrder = []CheckName{
	CheckSQLInjection,
	CheckUnionInjection,
	CheckCommentStripping,
	CheckTenantIsolation,
	CheckTableWhitelist,
	CheckColumnWhitelist,
	CheckFunctionWhitelist,
	CheckRowLimit,
	CheckTimeWindowLimit,
	CheckNestedQueryDepth,
	CheckJoinSafety,
	CheckExfiltrationPattern,
}

// Violation codes.
const (
	CodeInjection     = "INJ_001"
	CodeUnion         = "UNION_001"
	CodeComment       = "CMT_001"
	CodeTenantMissing = "TNT_001"
	CodeTenantBypass  = "TNT_002"
	CodeTable         = "TBL_001"
	CodePII           = "PII_001"
	CodeFunction      = "FUNC_001"
	CodeLimitMissing  = "LIMIT_001"
	CodeLimitExceeded = "LIMIT_002"
	CodeTimeWindow    = "TIME_001"
	CodeNesting       = "NEST_001"
	CodeJoin          = "JOIN_001"
	CodeExfiltration  = "EXFIL_001"
)

// CheckResult is the outcome of a single check. It is always present in a
// report, whether the check passed or not.
type CheckResult struct {
	Name          CheckName `json:"name"`
	Passed        bool      `json:"passed"`
	Severity      Severity  `json:"severity"`
	ViolationCode string    `json:"violation_code,omitempty"`
	Details       string    `json:"details,omitempty"`
}

// Pass builds a passing result for the named check.
func Pass(name CheckName) CheckResult {
	return CheckResult{Name: name, Passed: true, Severity: SeverityNone}
}

// Fail builds a failing result for the named check.
func Fail(name CheckName, sev Severity, code, details string) CheckResult {
	return CheckResult{
		Name:          name,
		Passed:        false,
		Severity:      sev,
		ViolationCode: code,
		Details:       details,
	}
}

// ValidationReport is the outcome of validating one SQL candidate.
type ValidationReport struct {
	Checks          []CheckResult `json:"checks"`
	Violations      []string      `json:"violations"`
	OverallSeverity Severity      `json:"overall_severity"`
	Passed          bool          `json:"passed"`
}

// Failed returns the failing checks in report order.
func (r ValidationReport) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// HasViolation reports whether code is among the report's violations.
func (r ValidationReport) HasViolation(code string) bool {
	for _, v := range r.Violations {
		if v == code {
			return true
		}
	}
	return false
}

// Finding pairs an extracted template with its validation report.
type Finding struct {
	Segment SQLSegment
	Report  ValidationReport
}

// ErrInvalidContext is returned when a ValidationContext cannot be used.
var ErrInvalidContext = errors.New("invalid validation context")

// ValidationContext carries the per-call tenant and the process-wide policy
// the checks evaluate against. It is never mutated after construction.
type ValidationContext struct {
	TenantID          string
	TenantColumn      string
	AllowedTables     map[string]struct{}
	FunctionWhitelist map[string]struct{}
	PIIColumns        map[string]struct{}
	MaxRowLimit       int
	MaxNestingDepth   int
	MaxTimeWindowDays int
}

// Validate reports contexts the checks cannot meaningfully run against.
func (c *ValidationContext) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: nil context", ErrInvalidContext)
	case strings.TrimSpace(c.TenantID) == "":
		return fmt.Errorf("%w: tenant id is empty", ErrInvalidContext)
	case strings.TrimSpace(c.TenantColumn) == "":
		return fmt.Errorf("%w: tenant column is empty", ErrInvalidContext)
	case c.MaxRowLimit <= 0:
		return fmt.Errorf("%w: max row limit must be positive, got %d", ErrInvalidContext, c.MaxRowLimit)
	case c.MaxNestingDepth <= 0:
		return fmt.Errorf("%w: max nesting depth must be positive, got %d", ErrInvalidContext, c.MaxNestingDepth)
	case c.MaxTimeWindowDays <= 0:
		return fmt.Errorf("%w: max time window must be positive, got %d", ErrInvalidContext, c.MaxTimeWindowDays)
	}
	return nil
}

// StringSet builds a lowercased set from names, dropping blanks.
func StringSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Has reports whether the lowercased name is in set.
func Has(set map[string]struct{}, name string) bool {
	_, ok := set[strings.ToLower(name)]
	return ok
}
