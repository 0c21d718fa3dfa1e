// TraceCheck - Invariant verifier for GPU executor logs
// Replays captured run logs and checks threadpool spans, pending
// operation counts and the kernel cache registry for consistency.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracecheck/tracecheck/pkg/checker"
	"github.com/tracecheck/tracecheck/pkg/checkpoint"
	"github.com/tracecheck/tracecheck/pkg/config"
	"github.com/tracecheck/tracecheck/pkg/grammar"
	"github.com/tracecheck/tracecheck/pkg/storage/s3"
	"github.com/tracecheck/tracecheck/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	checkerNames   []string
	threadpoolName string
	verbose        bool

	resumeFlag bool
	storeFlag  bool

	jsonOutput bool
	reportFile string

	historyLimit int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tracecheck",
	Short: "TraceCheck - Verify executor run logs against runtime invariants",
	Long: `TraceCheck replays a captured executor log and verifies it against the
runtime's consistency invariants: every threadpool span that starts must
end, node operations must never complete more often than they were issued,
and kernel cache hits and evictions must agree with what was stored.

Logs may be local files, gzip-compressed files, or s3:// URLs.

Examples:
  tracecheck check run.log
  tracecheck check run.log.gz --checker threadpool --checker pendingops
  tracecheck check s3://bench-logs/run-4821.log --store
  tracecheck watch /var/log/executor/current.log
  tracecheck history --limit 20`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [log-file]",
	Short: "Verify a log file against all enabled invariant checkers",
	Long: `Scan a log file once and run every enabled checker over it.

The scan is single-pass: each line is parsed once and the resulting events
are fanned out to the checkers concurrently. Exit status is non-zero when
any checker reports a violation.

Examples:
  tracecheck check run.log
  tracecheck check run.log --threadpool-name Workerpool
  tracecheck check run.log --resume
  tracecheck check run.log --json > result.json
  tracecheck check run.log --report result.xlsx --store`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var watchCmd = &cobra.Command{
	Use:   "watch [log-file]",
	Short: "Follow a growing log and re-verify it incrementally",
	Long: `Watch a log file that an executor is still appending to, and re-run the
checkers over each appended region as it arrives. Checker state carries
over between passes, so the verdict always reflects the whole file.

Truncation (log rotation) resets the checkers and starts over.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent verification runs from the history database",
	RunE:  runHistory,
}

var infoCmd = &cobra.Command{
	Use:   "info [log-file]",
	Short: "Summarize a log file without running the checkers",
	Long:  `Scan a log file and report how many lines match each event pattern.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output with progress")

	// Check command flags
	checkCmd.Flags().StringArrayVarP(&checkerNames, "checker", "c", nil, "Checker to run (threadpool, pendingops, kernelcache, all); repeatable")
	checkCmd.Flags().StringVar(&threadpoolName, "threadpool-name", "", "Thread pool name in span log lines (default from config)")
	checkCmd.Flags().BoolVar(&resumeFlag, "resume", false, "Resume from a saved checkpoint if one exists for this log")
	checkCmd.Flags().BoolVar(&storeFlag, "store", false, "Record the run in the history database")
	checkCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the report as JSON on stdout")
	checkCmd.Flags().StringVar(&reportFile, "report", "", "Write an XLSX report to this path")

	// Watch command flags
	watchCmd.Flags().StringArrayVarP(&checkerNames, "checker", "c", nil, "Checker to run; repeatable")
	watchCmd.Flags().StringVar(&threadpoolName, "threadpool-name", "", "Thread pool name in span log lines")

	// History command flags
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum number of runs to list")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(infoCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, saving progress...")
		cancel()
	}()

	return ctx, cancel
}

// buildCatalog assembles the line grammar from flags and config.
func buildCatalog(cfg *config.Config) *grammar.Catalog {
	name := cfg.Checkers.ThreadpoolName
	if threadpoolName != "" {
		name = threadpoolName
	}
	return grammar.NewCatalog(grammar.Options{ThreadpoolName: name})
}

// buildCheckers resolves the checker selection from flags and config.
func buildCheckers(cfg *config.Config) ([]checker.Checker, error) {
	names := checkerNames
	if len(names) == 0 {
		names = cfg.Checkers.Enabled
	}
	return checker.Named(names...)
}

// openBackend opens the configured checkpoint backend.
func openBackend(cfg *config.Config) (checkpoint.Backend, error) {
	switch cfg.Checkpoint.Backend {
	case "redis":
		return checkpoint.NewRedisBackend(checkpoint.RedisConfig{
			Address:  cfg.Checkpoint.Redis.Address,
			Password: cfg.Checkpoint.Redis.Password,
			Database: cfg.Checkpoint.Redis.Database,
			Prefix:   cfg.Checkpoint.Redis.Prefix,
			TTL:      cfg.Checkpoint.TTL,
		})
	default:
		return checkpoint.NewManager(cfg.Checkpoint.Dir)
	}
}

// resolveInput fetches s3:// inputs to a local temp file. The returned
// cleanup removes the temp file; it is a no-op for local paths.
func resolveInput(ctx context.Context, cfg *config.Config, path string) (string, func(), error) {
	if !s3.IsURL(path) {
		return path, func() {}, nil
	}

	s3cfg := s3.DefaultConfig(cfg.S3.Region)
	s3cfg.Endpoint = cfg.S3.Endpoint
	s3cfg.UsePathStyle = cfg.S3.UsePathStyle

	client, err := s3.NewClient(ctx, s3cfg)
	if err != nil {
		return "", nil, err
	}

	if verbose {
		fmt.Printf("Fetching %s\n", path)
	}

	local, err := client.Fetch(ctx, path)
	if err != nil {
		return "", nil, err
	}
	return local, func() { os.Remove(local) }, nil
}

// initTelemetry starts OTLP tracing when enabled. The returned shutdown
// is a no-op when telemetry is disabled.
func initTelemetry(cfg *config.Config) func(context.Context) error {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }
	}

	otlpCfg := telemetry.DefaultOTLPConfig("tracecheck")
	otlpCfg.Endpoint = cfg.Telemetry.Endpoint
	otlpCfg.ServiceVersion = version

	shutdown, err := telemetry.InitOTLP(otlpCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}
