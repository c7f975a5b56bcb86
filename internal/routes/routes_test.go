package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-guard/internal/auditor"
	"sql-guard/internal/config"
	"sql-guard/internal/gate"
	"sql-guard/internal/model"
	"sql-guard/internal/telemetry"
)

func newTestRouter(t *testing.T, maxBytes int64) http.Handler {
	t.Helper()
	p := telemetry.Noop("test")
	metrics, err := telemetry.NewGuardMetrics(p.Meter)
	require.NoError(t, err)

	policy := config.DefaultPolicy()
	policy.AllowedTables = []string{"orders"}
	store := config.NewStaticStore(policy)

	g := &gate.Gate{
		Auditor: auditor.New(),
		Store:   store,
		Tracer:  p.Tracer,
		Metrics: metrics,
	}
	return NewRouter("sql-guard", g, store, maxBytes)
}

type validateResponse struct {
	RequestID       string              `json:"request_id"`
	Passed          bool                `json:"passed"`
	Violations      []string            `json:"violations"`
	OverallSeverity string              `json:"overall_severity"`
	Checks          []model.CheckResult `json:"checks"`
	SQL             *string             `json:"sql"`
	Error           string              `json:"error"`
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	HealthHandler("sql-guard")(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sql-guard", resp.Service)
}

func TestPolicyHandler(t *testing.T) {
	router := newTestRouter(t, 1<<20)
	req := httptest.NewRequest(http.MethodGet, "/api/policy", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var summary config.Summary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, "tenant_id", summary.TenantColumn)
	assert.Equal(t, 1, summary.AllowedTables)
	assert.Equal(t, len(config.DefaultPIIColumns), summary.PIIColumns)
	assert.NotContains(t, w.Body.String(), "email")
}

func TestValidateHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantPassed bool
		wantCodes  []string
		wantError  string
	}{
		{
			name:       "accepted",
			body:       `{"tenant_id":"acme","sql":"SELECT region, COUNT(*) FROM orders WHERE tenant_id = 'acme' GROUP BY region LIMIT 10"}`,
			wantStatus: http.StatusOK,
			wantPassed: true,
			wantCodes:  []string{},
		},
		{
			name:       "rejected",
			body:       `{"tenant_id":"acme","sql":"SELECT * FROM orders UNION SELECT * FROM pg_user"}`,
			wantStatus: http.StatusForbidden,
			wantCodes:  []string{model.CodeUnion, model.CodeTenantMissing, model.CodeTable, model.CodeLimitMissing},
		},
		{
			name:       "malformed body",
			body:       `{"tenant_id":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "missing sql",
			body:       `{"tenant_id":"acme"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "sql is required",
		},
		{
			name:       "missing tenant",
			body:       `{"sql":"SELECT 1 FROM orders LIMIT 1"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid validation context",
		},
	}

	router := newTestRouter(t, 1<<20)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			var resp validateResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Nil(t, resp.SQL)

			if tt.wantError != "" {
				assert.Contains(t, resp.Error, tt.wantError)
				return
			}
			assert.NotEmpty(t, resp.RequestID)
			assert.Equal(t, tt.wantPassed, resp.Passed)
			assert.Equal(t, tt.wantCodes, resp.Violations)
			assert.Len(t, resp.Checks, len(model.CheckOrder))
		})
	}
}

func TestValidateHandler_BodyTooLarge(t *testing.T) {
	router := newTestRouter(t, 32)
	body := `{"tenant_id":"acme","sql":"` + strings.Repeat("x", 100) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestValidateHandler_DoesNotEchoSQL(t *testing.T) {
	router := newTestRouter(t, 1<<20)
	body := `{"tenant_id":"acme","sql":"SELECT secret_marker_col FROM orders; DROP TABLE orders"}`
	req := httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "secret_marker_col")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, 1<<20)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
