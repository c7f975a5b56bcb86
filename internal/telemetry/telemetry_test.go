package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"sql-guard/internal/model"
)

func TestInitReturnsProvider(t *testing.T) {
	ctx := context.Background()
	// exporters connect lazily, so init succeeds without a collector
	p, err := Init(ctx, "test-service", "http://localhost:4318", "test")
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer)
	assert.NotNil(t, p.Meter)
	assert.NotNil(t, p.TracerProvider)
	assert.NotNil(t, p.MeterProvider)
	assert.NotNil(t, p.LoggerProvider)

	_ = p.Shutdown(ctx)
}

func TestNoopProvider(t *testing.T) {
	p := Noop("test")
	assert.NotNil(t, p.Tracer)
	assert.NotNil(t, p.Meter)
	assert.NoError(t, p.Shutdown(context.Background()))

	_, err := NewGuardMetrics(p.Meter)
	assert.NoError(t, err)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return 0
}

func TestGuardMetrics_RecordValidation(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)

	g, err := NewGuardMetrics(mp.Meter("test"))
	require.NoError(t, err)

	report := model.ValidationReport{
		Checks: []model.CheckResult{
			model.Fail(model.CheckSQLInjection, model.SeverityCritical, model.CodeInjection, ""),
			model.Pass(model.CheckUnionInjection),
			model.Fail(model.CheckRowLimit, model.SeverityMedium, model.CodeLimitMissing, ""),
		},
		Violations:      []string{model.CodeInjection, model.CodeLimitMissing},
		OverallSeverity: model.SeverityCritical,
	}
	g.RecordValidation(ctx, report, 0.4)
	g.RecordValidation(ctx, model.ValidationReport{Passed: true, OverallSeverity: model.SeverityNone}, 0.2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "sqlguard.validations"))
	assert.Equal(t, int64(2), sumOf(t, rm, "sqlguard.violations"))
}
