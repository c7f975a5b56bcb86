package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sql-guard/internal/config"
	"sql-guard/internal/logging"
	"sql-guard/internal/model"
	"sql-guard/internal/reporter"
)

// errRejected signals that at least one statement failed validation. It maps
// to exit code 1 without further output.
var errRejected = errors.New("sql rejected")

var (
	cfg        = config.Load()
	policyPath string
	logLevel   string
	reportFmt  string
)

var rootCmd = &cobra.Command{
	Use:   "sql-guard",
	Short: "A static guard for generated SQL in multi-tenant analytics",
	Long: `sql-guard validates candidate SQL against twelve fixed checks
(injection, tenant isolation, table and column whitelists, row and time
limits, exfiltration and more) and reports every violation it finds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Options{
			Service:     cfg.OTelServiceName,
			Environment: cfg.Environment,
			Level:       logLevel,
			Format:      cfg.LogFormat,
			Output:      cmd.ErrOrStderr(),
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&policyPath, "policy", "p", cfg.PolicyPath, "Path to the guard policy YAML (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(validateCmd, scanCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newReporter(format string, out io.Writer) (model.Reporter, error) {
	switch format {
	case "console":
		return reporter.NewConsoleReporter(out), nil
	case "json":
		return reporter.NewJSONReporter(out), nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want console or json)", format)
	}
}
