package model

import (
	"sql-guard/internal/parser"
)

// Extractor is responsible for parsing a file and finding SQL templates
type Extractor interface {
	// Extract parses the given file content and returns found SQL segments
	Extract(filePath string, content []byte) ([]SQLSegment, error)
}

// Rule represents a single check of the battery
type Rule interface {
	// Name returns the unique identifier of the check
	Name() CheckName
	// Check examines the scanned candidate against the context. It never
	// fails: every outcome, including malformed input, is a CheckResult.
	Check(scan *parser.Scan, vctx *ValidationContext) CheckResult
}

// Reporter defines how to output results
type Reporter interface {
	Report(findings []Finding) error
}
