package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sql-guard/internal/auditor"
	"sql-guard/internal/config"
	"sql-guard/internal/gate"
	"sql-guard/internal/logging"
	"sql-guard/internal/model"
	"sql-guard/internal/telemetry"
)

var tenantID string

var validateCmd = &cobra.Command{
	Use:   "validate [sql]",
	Short: "Validate one SQL statement on behalf of a tenant",
	Long: `Validate runs every check against the statement given as argument,
or read from stdin when no argument is given. The exit code is 1 when the
statement is rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := "<stdin>"
		var sql string
		if len(args) == 1 {
			source, sql = "<arg>", args[0]
		} else {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			sql = string(b)
		}
		if strings.TrimSpace(sql) == "" {
			return fmt.Errorf("no SQL given")
		}
		return runValidate(cmd.Context(), cmd.OutOrStdout(), source, sql)
	},
}

func init() {
	validateCmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant id the statement runs for")
	validateCmd.Flags().StringVarP(&reportFmt, "format", "f", "console", "Report format (console, json)")
	_ = validateCmd.MarkFlagRequired("tenant")
}

func runValidate(ctx context.Context, out io.Writer, source, sql string) error {
	rpt, err := newReporter(reportFmt, out)
	if err != nil {
		return err
	}

	store, err := config.NewPolicyStore(policyPath, logging.Logger())
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	tp := telemetry.Noop(cfg.OTelServiceName)
	metrics, err := telemetry.NewGuardMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	g := &gate.Gate{
		Auditor: auditor.New(),
		Store:   store,
		Tracer:  tp.Tracer,
		Metrics: metrics,
		Logger:  logging.Logger(),
	}
	decision, err := g.Check(ctx, tenantID, sql)
	if err != nil {
		return err
	}

	finding := model.Finding{
		Segment: model.SQLSegment{SQL: sql, Location: model.Location{FilePath: source, Line: 1}, Language: "sql"},
		Report:  decision.ValidationReport,
	}
	if err := rpt.Report([]model.Finding{finding}); err != nil {
		return fmt.Errorf("reporting failed: %w", err)
	}
	if !decision.Passed {
		return errRejected
	}
	return nil
}
