package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sql-guard/internal/auditor"
	"sql-guard/internal/config"
	"sql-guard/internal/extractor"
	"sql-guard/internal/logging"
	"sql-guard/internal/model"
	"sql-guard/internal/scanner"
)

var (
	srcPath     string
	excludes    []string
	concurrency int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Validate the SQL templates found in a source tree",
	Long: `Scan extracts SELECT and WITH templates from Go, Python and .sql
files and validates each one for the given tenant. Templates should carry
the tenant literal passed with --tenant where they bind the tenant column.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(srcPath); err != nil {
			return fmt.Errorf("source path: %w", err)
		}
		rpt, err := newReporter(reportFmt, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		policy, err := config.LoadPolicy(policyPath)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		vctx, err := policy.Context(tenantID)
		if err != nil {
			return err
		}

		aud := auditor.New()
		linter := &scanner.Linter{
			Walker:  scanner.NewFileWalker([]string{"go", "py", "sql"}, excludes),
			Extract: extractor.NewDefaultManager().Extract,
			Validate: func(segments []model.SQLSegment) []model.Finding {
				return aud.Audit(segments, vctx)
			},
			Concurrency: concurrency,
			Logger:      logging.Logger(),
		}

		findings, err := linter.Run(cmd.Context(), srcPath)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if err := rpt.Report(findings); err != nil {
			return fmt.Errorf("reporting failed: %w", err)
		}
		for _, f := range findings {
			if !f.Report.Passed {
				return errRejected
			}
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVarP(&srcPath, "src", "s", ".", "Path to source code to scan")
	scanCmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant literal the templates bind")
	scanCmd.Flags().StringVarP(&reportFmt, "format", "f", "console", "Report format (console, json)")
	scanCmd.Flags().StringSliceVarP(&excludes, "exclude", "e", []string{".git", "vendor", "*_test.go"}, "Glob patterns to exclude from scan")
	scanCmd.Flags().IntVarP(&concurrency, "concurrency", "c", cfg.ScanConcurrency, "Number of files processed in parallel")
	_ = scanCmd.MarkFlagRequired("tenant")
}
