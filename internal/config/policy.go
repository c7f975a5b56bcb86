package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"sql-guard/internal/model"
)

// ErrInvalidPolicy is returned when a policy cannot back any validation.
var ErrInvalidPolicy = errors.New("invalid guard policy")

// DefaultPIIColumns is the built-in PII denylist.
var DefaultPIIColumns = []string{
	"email", "email_address", "phone", "phone_number", "mobile_number",
	"address", "street_address", "ssn", "social_security_number", "tax_id",
	"passport_number", "national_id", "drivers_license", "date_of_birth", "dob",
	"first_name", "last_name", "full_name", "ip_address", "credit_card_number",
	"bank_account_number",
}

// DefaultFunctions are the aggregate, date, string and window functions an
// analytical template may call.
var DefaultFunctions = []string{
	"count", "sum", "avg", "min", "max", "coalesce", "nullif", "round",
	"floor", "ceil", "abs", "date_trunc", "extract", "date_part", "to_char",
	"to_date", "now", "lower", "upper", "trim", "length", "concat",
	"substring", "cast", "greatest", "least", "percentile_cont", "stddev",
	"variance", "row_number", "rank", "dense_rank", "lag", "lead", "date",
}

// Policy is the process-wide, read-only guard configuration. Per-call
// contexts are derived from it with Context.
type Policy struct {
	TenantColumn      string   `yaml:"tenant_column"`
	AllowedTables     []string `yaml:"allowed_tables"`
	FunctionWhitelist []string `yaml:"function_whitelist"`
	PIIColumns        []string `yaml:"pii_columns"`
	MaxRowLimit       int      `yaml:"max_row_limit"`
	MaxNestingDepth   int      `yaml:"max_nesting_depth"`
	MaxTimeWindowDays int      `yaml:"max_time_window_days"`
}

// DefaultPolicy is the starting policy used when no policy file is given.
func DefaultPolicy() *Policy {
	return &Policy{
		TenantColumn:      "tenant_id",
		FunctionWhitelist: append([]string(nil), DefaultFunctions...),
		PIIColumns:        append([]string(nil), DefaultPIIColumns...),
		MaxRowLimit:       10000,
		MaxNestingDepth:   3,
		MaxTimeWindowDays: 730,
	}
}

// LoadPolicy reads the YAML policy at path over the defaults, applies
// SQLGUARD_* environment overrides and validates the result. An empty path
// yields the defaults plus overrides. Unknown YAML keys are rejected.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open policy: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(p); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode policy %s: %w", path, err)
		}
	}
	p.applyEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) applyEnv() {
	p.TenantColumn = envOr("SQLGUARD_TENANT_COLUMN", p.TenantColumn)
	p.MaxRowLimit = envOrInt("SQLGUARD_MAX_ROW_LIMIT", p.MaxRowLimit)
	p.MaxNestingDepth = envOrInt("SQLGUARD_MAX_NESTING_DEPTH", p.MaxNestingDepth)
	p.MaxTimeWindowDays = envOrInt("SQLGUARD_MAX_TIME_WINDOW_DAYS", p.MaxTimeWindowDays)
	if tables, ok := envList("SQLGUARD_ALLOWED_TABLES"); ok {
		p.AllowedTables = tables
	}
}

// Validate fails fast on policies no context could be built from.
func (p *Policy) Validate() error {
	switch {
	case p.TenantColumn == "":
		return fmt.Errorf("%w: tenant_column is empty", ErrInvalidPolicy)
	case p.MaxRowLimit <= 0:
		return fmt.Errorf("%w: max_row_limit must be positive, got %d", ErrInvalidPolicy, p.MaxRowLimit)
	case p.MaxNestingDepth <= 0:
		return fmt.Errorf("%w: max_nesting_depth must be positive, got %d", ErrInvalidPolicy, p.MaxNestingDepth)
	case p.MaxTimeWindowDays <= 0:
		return fmt.Errorf("%w: max_time_window_days must be positive, got %d", ErrInvalidPolicy, p.MaxTimeWindowDays)
	}
	return nil
}

// Context builds the validation context for one call on behalf of tenantID.
func (p *Policy) Context(tenantID string) (*model.ValidationContext, error) {
	vctx := &model.ValidationContext{
		TenantID:          tenantID,
		TenantColumn:      p.TenantColumn,
		AllowedTables:     model.StringSet(p.AllowedTables...),
		FunctionWhitelist: model.StringSet(p.FunctionWhitelist...),
		PIIColumns:        model.StringSet(p.PIIColumns...),
		MaxRowLimit:       p.MaxRowLimit,
		MaxNestingDepth:   p.MaxNestingDepth,
		MaxTimeWindowDays: p.MaxTimeWindowDays,
	}
	if err := vctx.Validate(); err != nil {
		return nil, err
	}
	return vctx, nil
}

// Summary describes the policy without listing its contents.
type Summary struct {
	TenantColumn      string `json:"tenant_column"`
	AllowedTables     int    `json:"allowed_tables"`
	Functions         int    `json:"functions"`
	PIIColumns        int    `json:"pii_columns"`
	MaxRowLimit       int    `json:"max_row_limit"`
	MaxNestingDepth   int    `json:"max_nesting_depth"`
	MaxTimeWindowDays int    `json:"max_time_window_days"`
}

func (p *Policy) Summary() Summary {
	return Summary{
		TenantColumn:      p.TenantColumn,
		AllowedTables:     len(p.AllowedTables),
		Functions:         len(p.FunctionWhitelist),
		PIIColumns:        len(p.PIIColumns),
		MaxRowLimit:       p.MaxRowLimit,
		MaxNestingDepth:   p.MaxNestingDepth,
		MaxTimeWindowDays: p.MaxTimeWindowDays,
	}
}
