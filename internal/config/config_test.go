package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-guard/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "", cfg.PolicyPath)
	assert.True(t, cfg.WatchPolicy)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, "sql-guard", cfg.OTelServiceName)
	assert.Equal(t, "http://localhost:4318", cfg.OTelEndpoint)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10, cfg.ScanConcurrency)
	assert.Equal(t, 1<<20, cfg.MaxRequestBytes)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SQLGUARD_POLICY", "/etc/guard.yaml")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SQLGUARD_SCAN_CONCURRENCY", "4")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/etc/guard.yaml", cfg.PolicyPath)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 4, cfg.ScanConcurrency)
}

func TestInvalidValuesFallBackToDefault(t *testing.T) {
	t.Setenv("SQLGUARD_SCAN_CONCURRENCY", "abc")
	t.Setenv("SQLGUARD_WATCH_POLICY", "maybe")

	cfg := Load()

	assert.Equal(t, 10, cfg.ScanConcurrency)
	assert.True(t, cfg.WatchPolicy)
}

func writePolicy(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPolicy(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, p *Policy)
	}{
		{
			name: "defaults from empty file",
			body: "",
			check: func(t *testing.T, p *Policy) {
				assert.Equal(t, "tenant_id", p.TenantColumn)
				assert.Equal(t, 10000, p.MaxRowLimit)
				assert.Equal(t, 3, p.MaxNestingDepth)
				assert.Equal(t, 730, p.MaxTimeWindowDays)
				assert.Len(t, p.PIIColumns, 21)
			},
		},
		{
			name: "file overrides",
			body: "allowed_tables: [orders, customers]\nmax_row_limit: 500\n",
			check: func(t *testing.T, p *Policy) {
				assert.Equal(t, []string{"orders", "customers"}, p.AllowedTables)
				assert.Equal(t, 500, p.MaxRowLimit)
				assert.Equal(t, 3, p.MaxNestingDepth)
			},
		},
		{
			name: "env overrides file",
			body: "allowed_tables: [orders]\nmax_row_limit: 500\n",
			env:  map[string]string{"SQLGUARD_MAX_ROW_LIMIT": "50", "SQLGUARD_ALLOWED_TABLES": "a, b,,c"},
			check: func(t *testing.T, p *Policy) {
				assert.Equal(t, 50, p.MaxRowLimit)
				assert.Equal(t, []string{"a", "b", "c"}, p.AllowedTables)
			},
		},
		{
			name:    "unknown key",
			body:    "max_rows: 10\n",
			wantErr: true,
		},
		{
			name:    "non-positive limit",
			body:    "max_row_limit: 0\n",
			wantErr: true,
		},
		{
			name:    "empty tenant column",
			body:    "tenant_column: \"\"\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			p, err := LoadPolicy(writePolicy(t, t.TempDir(), tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestLoadPolicy_InvalidIsSentinel(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, t.TempDir(), "max_nesting_depth: -1\n"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPolicy_Context(t *testing.T) {
	p := DefaultPolicy()
	p.AllowedTables = []string{"Orders"}

	vctx, err := p.Context("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", vctx.TenantID)
	assert.True(t, model.Has(vctx.AllowedTables, "orders"))
	assert.True(t, model.Has(vctx.PIIColumns, "SSN"))
	assert.True(t, model.Has(vctx.FunctionWhitelist, "count"))

	_, err = p.Context("  ")
	assert.ErrorIs(t, err, model.ErrInvalidContext)
}

func TestPolicy_Summary(t *testing.T) {
	p := DefaultPolicy()
	p.AllowedTables = []string{"orders", "customers"}

	s := p.Summary()
	assert.Equal(t, 2, s.AllowedTables)
	assert.Equal(t, 21, s.PIIColumns)
	assert.Equal(t, len(DefaultFunctions), s.Functions)
}

func TestPolicyStore_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "max_row_limit: 100\n")

	store, err := NewPolicyStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, store.Policy().MaxRowLimit)

	writePolicy(t, dir, "max_row_limit: 200\n")
	require.NoError(t, store.Reload())
	assert.Equal(t, 200, store.Policy().MaxRowLimit)

	writePolicy(t, dir, "max_row_limit: -5\n")
	assert.Error(t, store.Reload())
	assert.Equal(t, 200, store.Policy().MaxRowLimit, "invalid reload must keep the previous policy")
}

func TestPolicyStore_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "max_row_limit: 100\n")

	store, err := NewPolicyStore(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writePolicy(t, dir, "max_row_limit: 250\n")

	assert.Eventually(t, func() bool {
		return store.Policy().MaxRowLimit == 250
	}, 5*time.Second, 50*time.Millisecond)
}
