package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sql-guard/internal/auditor"
	"sql-guard/internal/config"
	"sql-guard/internal/logging"
	"sql-guard/internal/model"
	"sql-guard/internal/telemetry"
)

// Decision is the outcome of one gated validation.
type Decision struct {
	RequestID string `json:"request_id"`
	model.ValidationReport
}

// Gate validates candidate SQL on behalf of a tenant using the active
// policy, and records every decision. It never logs or returns the SQL text.
type Gate struct {
	Auditor *auditor.Auditor
	Store   *config.PolicyStore
	Tracer  trace.Tracer
	Metrics *telemetry.GuardMetrics
	Logger  *slog.Logger
}

// Check validates sql for tenantID. The error is non-nil only when no
// validation context can be built, e.g. for an empty tenant.
func (g *Gate) Check(ctx context.Context, tenantID, sql string) (*Decision, error) {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := g.Tracer.Start(ctx, "sqlguard validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("sqlguard.request_id", requestID),
		attribute.String("sqlguard.tenant_id", tenantID),
		attribute.Int("sqlguard.sql_bytes", len(sql)),
	)

	log := logging.FromLogger(ctx, g.logger()).With(
		slog.String("request_id", requestID),
		slog.String("tenant_id", tenantID),
	)

	vctx, err := g.Store.Policy().Context(tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid validation context")
		g.Metrics.PolicyErrors.Add(ctx, 1)
		log.Warn("validation context rejected", slog.String("error", err.Error()))
		return nil, fmt.Errorf("build validation context: %w", err)
	}

	report := g.Auditor.Validate(sql, vctx)
	durationMs := float64(time.Since(start).Microseconds()) / 1000

	span.SetAttributes(
		attribute.Bool("sqlguard.passed", report.Passed),
		attribute.String("sqlguard.severity", string(report.OverallSeverity)),
		attribute.StringSlice("sqlguard.violations", report.Violations),
	)
	g.Metrics.RecordValidation(ctx, report, durationMs)

	if report.Passed {
		log.Debug("sql accepted", slog.Float64("duration_ms", durationMs))
	} else {
		span.SetStatus(codes.Error, "sql rejected")
		log.Warn("sql rejected",
			slog.String("violations", strings.Join(report.Violations, ",")),
			slog.String("overall_severity", string(report.OverallSeverity)),
			slog.Float64("duration_ms", durationMs),
		)
	}

	return &Decision{RequestID: requestID, ValidationReport: report}, nil
}

func (g *Gate) logger() *slog.Logger {
	if g.Logger == nil {
		return logging.Logger()
	}
	return g.Logger
}
