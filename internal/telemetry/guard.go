package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"sql-guard/internal/model"
)

type GuardMetrics struct {
	Validations        metric.Int64Counter
	Violations         metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	PolicyErrors       metric.Int64Counter
}

func NewGuardMetrics(m metric.Meter) (*GuardMetrics, error) {
	validations, err := m.Int64Counter("sqlguard.validations",
		metric.WithUnit("{validation}"),
		metric.WithDescription("Validation decisions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	violations, err := m.Int64Counter("sqlguard.violations",
		metric.WithUnit("{violation}"),
		metric.WithDescription("Failed checks by violation code"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := m.Float64Histogram("sqlguard.validation.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time to run the full check battery"),
	)
	if err != nil {
		return nil, err
	}

	policyErrors, err := m.Int64Counter("sqlguard.context.errors",
		metric.WithUnit("{error}"),
		metric.WithDescription("Requests rejected before validation because no context could be built"),
	)
	if err != nil {
		return nil, err
	}

	return &GuardMetrics{
		Validations:        validations,
		Violations:         violations,
		ValidationDuration: duration,
		PolicyErrors:       policyErrors,
	}, nil
}

// RecordValidation records one decision and each of its violations.
func (g *GuardMetrics) RecordValidation(ctx context.Context, report model.ValidationReport, durationMs float64) {
	outcome := metric.WithAttributes(
		attribute.Bool("sqlguard.passed", report.Passed),
		attribute.String("sqlguard.severity", string(report.OverallSeverity)),
	)
	g.Validations.Add(ctx, 1, outcome)
	g.ValidationDuration.Record(ctx, durationMs, outcome)

	for _, c := range report.Checks {
		if c.Passed {
			continue
		}
		g.Violations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("sqlguard.check", string(c.Name)),
			attribute.String("sqlguard.violation_code", c.ViolationCode),
			attribute.String("sqlguard.severity", string(c.Severity)),
		))
	}
}
