package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tracecheck/tracecheck/pkg/checker"
	"github.com/tracecheck/tracecheck/pkg/checkpoint"
	"github.com/tracecheck/tracecheck/pkg/config"
	"github.com/tracecheck/tracecheck/pkg/errors"
	"github.com/tracecheck/tracecheck/pkg/report"
	"github.com/tracecheck/tracecheck/pkg/scan"
	"github.com/tracecheck/tracecheck/pkg/store"
	"github.com/tracecheck/tracecheck/pkg/telemetry"
)

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTelemetry := initTelemetry(cfg)
	defer shutdownTelemetry(context.Background())

	logPath, cleanup, err := resolveInput(ctx, cfg, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	checkers, err := buildCheckers(cfg)
	if err != nil {
		return err
	}
	catalog := buildCatalog(cfg)

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}

	// Resume from a previous checkpoint when asked and one exists.
	cp := checkpoint.New(logPath)
	if resumeFlag {
		if prev, err := backend.FindByLog(ctx, logPath); err == nil && prev.ShouldResume() {
			if err := prev.Apply(checkers); err != nil {
				return errors.Wrap(err, errors.CodeCheckpointFailed, "failed to restore checkpoint state")
			}
			cp = prev
			if verbose {
				fmt.Printf("Resuming from line %d (offset %d)\n", cp.Lines, cp.Offset)
			}
		}
	}

	sc, err := scan.OpenAt(logPath, cp.Offset, cp.Lines)
	if err != nil {
		return err
	}
	defer sc.Close()

	runner := checker.NewRunner(catalog, checkers...)
	if verbose {
		// A compressed log's on-disk size is not comparable to the
		// uncompressed byte offsets, so it gets the plain counter.
		if strings.HasSuffix(logPath, ".gz") {
			runner.SetProgressCallback(report.PrintProgress)
		} else {
			bar := report.ShowProgress(sc.Size(), "scanning")
			runner.SetProgressCallback(func(lines, bytes int64) {
				bar.Set64(bytes)
			})
			defer bar.Finish()
		}
	}

	ctx, span := telemetry.StartSpanFromContext(ctx, "check")
	defer span.End()
	telemetry.SetSpanAttributes(ctx, attribute.String("log.path", logPath))

	startedAt := time.Now()
	result, err := runner.CheckScanner(ctx, sc)
	if verbose {
		report.ClearLine()
	}

	if err != nil {
		telemetry.RecordError(ctx, err)

		// An interrupted scan is worth checkpointing so --resume can
		// continue it later. The resume point is the last line the
		// checkers were actually handed, not the scanner's read-ahead
		// position: lines still buffered in the pipeline at cancellation
		// were never observed and must be rescanned.
		if errors.IsCode(err, errors.CodeContextCanceled) {
			offset, lines := runner.Position()
			if cerr := cp.Capture(offset, lines, checkers); cerr == nil {
				if serr := backend.Save(context.Background(), cp); serr == nil {
					fmt.Fprintf(os.Stderr, "Checkpoint saved at line %d; rerun with --resume\n", lines)
				}
			}
		}
		return err
	}

	// The run finished; retire any checkpoint for this log. A stale
	// checkpoint left behind would re-resume a completed run.
	cp.SetPhase(checkpoint.PhaseComplete)
	if err := backend.Delete(context.Background(), cp.ID); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to remove checkpoint %s: %v\n", cp.ID, err)
	}

	telemetry.SetSpanAttributes(ctx,
		attribute.Int64("log.lines", result.LinesScanned),
		attribute.Bool("check.passed", result.Passed()),
		attribute.Int("check.violations", result.ViolationCount()),
	)

	if jsonOutput {
		if err := report.WriteJSON(result, os.Stdout); err != nil {
			return errors.Wrap(err, errors.CodeReportFailed, "failed to write JSON report")
		}
	} else {
		report.Print(result)
	}

	if reportFile != "" {
		if err := report.WriteXLSX(result, reportFile); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("Report: %s\n", reportFile)
		}
	}

	if storeFlag {
		if err := saveRun(ctx, cfg, cp.ID, startedAt, result); err != nil {
			return err
		}
	}

	if !result.Passed() {
		return errors.New(errors.CodeViolation,
			fmt.Sprintf("%d invariant violation(s) found", result.ViolationCount()))
	}
	return nil
}

func saveRun(ctx context.Context, cfg *config.Config, runID string, startedAt time.Time, result *checker.RunReport) error {
	db, err := store.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveRun(ctx, runID, startedAt, result); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Run %s recorded in %s\n", runID, cfg.Storage.Database)
	}
	return nil
}
