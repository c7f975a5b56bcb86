package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds process settings for the guard service and CLI.
type Config struct {
	Port            string
	PolicyPath      string
	WatchPolicy     bool
	OTelEnabled     bool
	OTelServiceName string
	OTelEndpoint    string
	Environment     string
	LogLevel        string
	LogFormat       string
	ScanConcurrency int
	ShutdownSeconds int
	MaxRequestBytes int
}

// Load reads the process configuration from the environment.
func Load() *Config {
	return &Config{
		Port:            envOr("APP_PORT", "8080"),
		PolicyPath:      os.Getenv("SQLGUARD_POLICY"),
		WatchPolicy:     envOrBool("SQLGUARD_WATCH_POLICY", true),
		OTelEnabled:     envOrBool("OTEL_ENABLED", true),
		OTelServiceName: envOr("OTEL_SERVICE_NAME", "sql-guard"),
		OTelEndpoint:    envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		Environment:     envOr("SCOUT_ENVIRONMENT", "development"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
		ScanConcurrency: envOrInt("SQLGUARD_SCAN_CONCURRENCY", 10),
		ShutdownSeconds: envOrInt("SQLGUARD_SHUTDOWN_SECONDS", 10),
		MaxRequestBytes: envOrInt("SQLGUARD_MAX_REQUEST_BYTES", 1<<20),
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma separated variable, dropping blanks.
func envList(key string) ([]string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, true
}
