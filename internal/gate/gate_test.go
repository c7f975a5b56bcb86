package gate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sql-guard/internal/auditor"
	"sql-guard/internal/config"
	"sql-guard/internal/model"
	"sql-guard/internal/telemetry"
)

const (
	goodSQL = "SELECT region, SUM(amount) AS total FROM orders WHERE tenant_id = 'acme' GROUP BY region LIMIT 100"
	badSQL  = "SELECT email FROM orders WHERE tenant_id = 'acme' OR 1=1 LIMIT 100"
)

type harness struct {
	gate     *Gate
	spans    *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
	logs     *bytes.Buffer
	teardown func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := telemetry.NewGuardMetrics(mp.Meter("test"))
	require.NoError(t, err)

	policy := config.DefaultPolicy()
	policy.AllowedTables = []string{"orders", "customers"}

	logs := &bytes.Buffer{}
	return &harness{
		gate: &Gate{
			Auditor: auditor.New(),
			Store:   config.NewStaticStore(policy),
			Tracer:  tp.Tracer("test"),
			Metrics: metrics,
			Logger:  slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		},
		spans:  spans,
		reader: reader,
		logs:   logs,
		teardown: func() {
			_ = tp.Shutdown(ctx)
			_ = mp.Shutdown(ctx)
		},
	}
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func counter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestGate_Accepts(t *testing.T) {
	h := newHarness(t)
	defer h.teardown()

	d, err := h.gate.Check(context.Background(), "acme", goodSQL)
	require.NoError(t, err)

	assert.True(t, d.Passed, "failed: %+v", d.Failed())
	assert.NotEmpty(t, d.RequestID)
	assert.Len(t, d.Checks, len(model.CheckOrder))

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "sqlguard validate", ended[0].Name())
	passed, ok := attrValue(ended[0], "sqlguard.passed")
	require.True(t, ok)
	assert.True(t, passed.AsBool())
	assert.NotEqual(t, codes.Error, ended[0].Status().Code)
}

func TestGate_RejectsAndRecords(t *testing.T) {
	h := newHarness(t)
	defer h.teardown()
	ctx := context.Background()

	d, err := h.gate.Check(ctx, "acme", badSQL)
	require.NoError(t, err)

	assert.False(t, d.Passed)
	assert.Equal(t, model.SeverityCritical, d.OverallSeverity)
	assert.True(t, d.HasViolation(model.CodeInjection))
	assert.True(t, d.HasViolation(model.CodePII))

	span := h.spans.Ended()[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	violations, ok := attrValue(span, "sqlguard.violations")
	require.True(t, ok)
	assert.Equal(t, d.Violations, violations.AsStringSlice())

	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(ctx, &rm))
	assert.Equal(t, int64(1), counter(t, rm, "sqlguard.validations"))
	assert.Equal(t, int64(len(d.Violations)), counter(t, rm, "sqlguard.violations"))

	out := h.logs.String()
	assert.Contains(t, out, "sql rejected")
	assert.Contains(t, out, d.RequestID)
	assert.Contains(t, out, "INJ_001")
	assert.NotContains(t, out, "1=1", "raw SQL must not be logged")
}

func TestGate_EmptyTenant(t *testing.T) {
	h := newHarness(t)
	defer h.teardown()
	ctx := context.Background()

	d, err := h.gate.Check(ctx, "  ", goodSQL)
	require.Error(t, err)
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, model.ErrInvalidContext))

	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(ctx, &rm))
	assert.Equal(t, int64(1), counter(t, rm, "sqlguard.context.errors"))
	assert.Equal(t, int64(0), counter(t, rm, "sqlguard.validations"))
}

func TestGate_UniqueRequestIDs(t *testing.T) {
	h := newHarness(t)
	defer h.teardown()

	a, err := h.gate.Check(context.Background(), "acme", goodSQL)
	require.NoError(t, err)
	b, err := h.gate.Check(context.Background(), "acme", goodSQL)
	require.NoError(t, err)
	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.Equal(t, a.ValidationReport, b.ValidationReport)
}
