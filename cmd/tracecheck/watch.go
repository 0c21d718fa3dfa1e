package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracecheck/tracecheck/pkg/checker"
	"github.com/tracecheck/tracecheck/pkg/checkpoint"
	"github.com/tracecheck/tracecheck/pkg/config"
	"github.com/tracecheck/tracecheck/pkg/grammar"
	"github.com/tracecheck/tracecheck/pkg/report"
	"github.com/tracecheck/tracecheck/pkg/scan"
	"github.com/tracecheck/tracecheck/pkg/watch"
)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	logPath := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	checkers, err := buildCheckers(cfg)
	if err != nil {
		return err
	}
	catalog := buildCatalog(cfg)

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}

	follow, err := watch.NewFollow(logPath)
	if err != nil {
		return err
	}
	defer follow.Close()

	f := &follower{
		catalog: catalog,
		active:  checkers,
		fresh: func() []checker.Checker {
			cs, _ := buildCheckers(cfg)
			return cs
		},
		backend: backend,
		cp:      checkpoint.New(follow.Path()),
		started: time.Now(),
	}

	// Verify whatever is already in the file before waiting for appends.
	if err := f.scanOnce(ctx); err != nil {
		return err
	}

	follow.OnAppend = func() error { return f.scanOnce(ctx) }
	follow.OnTruncate = func() error { return f.reset() }
	follow.OnError = func(err error) {
		fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
	}

	fmt.Printf("Watching %s (ctrl-c to stop)\n", follow.Path())
	if err := follow.Run(ctx); err != nil && err != context.Canceled {
		return err
	}

	// Only at shutdown is end-of-stream known; report the anomalies the
	// incremental passes deliberately held back.
	f.printFinal()
	return nil
}

// follower re-verifies a growing log incrementally. Checker state is
// carried across passes through the checkpoint, so each pass only reads
// the newly appended region. End-of-stream anomalies are withheld while
// the file is still growing; a checker that hits a fatal violation is
// retired, since its diverged state would only compound.
type follower struct {
	mu      sync.Mutex
	catalog *grammar.Catalog
	active  []checker.Checker
	failed  []checker.Result
	fresh   func() []checker.Checker
	backend checkpoint.Backend
	cp      *checkpoint.Checkpoint
	started time.Time
}

func (f *follower) scanOnce(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.active) == 0 {
		return nil
	}

	sc, err := scan.OpenAt(f.cp.LogPath, f.cp.Offset, f.cp.Lines)
	if err != nil {
		return err
	}
	defer sc.Close()

	runner := checker.NewRunner(f.catalog, f.active...)
	runner.SetIncremental(true)
	result, err := runner.CheckScanner(ctx, sc)
	if err != nil {
		return err
	}

	report.Print(result)

	// Retire checkers whose model diverged; their state must neither be
	// checkpointed nor fed further events.
	var surviving []checker.Checker
	for i, res := range result.Results {
		if res.Aborted {
			f.failed = append(f.failed, res)
			fmt.Fprintf(os.Stderr, "%s checker stopped: %s\n",
				res.Checker, res.Violations[0].Message())
			continue
		}
		surviving = append(surviving, f.active[i])
	}
	f.active = surviving

	offset, lines := runner.Position()
	if err := f.cp.Capture(offset, lines, f.active); err != nil {
		return err
	}
	return f.backend.Save(ctx, f.cp)
}

// reset discards all derived state after truncation (log rotation).
func (f *follower) reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fmt.Fprintf(os.Stderr, "%s truncated, restarting verification\n", f.cp.LogPath)
	f.active = f.fresh()
	f.failed = nil
	f.cp = checkpoint.New(f.cp.LogPath)
	return nil
}

// printFinal runs the end-of-stream checks the incremental passes
// skipped and prints the overall verdict.
func (f *follower) printFinal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]checker.Result, 0, len(f.active)+len(f.failed))
	for _, c := range f.active {
		violations := c.Finish()
		results = append(results, checker.Result{
			Checker:       c.Name(),
			Passed:        len(violations) == 0,
			EventsMatched: c.EventsMatched(),
			Violations:    violations,
		})
	}
	results = append(results, f.failed...)

	final := &checker.RunReport{
		Log:          f.cp.LogPath,
		LinesScanned: f.cp.Lines,
		BytesRead:    f.cp.Offset,
		Duration:     time.Since(f.started),
		Results:      results,
	}

	fmt.Println("\nFinal verdict:")
	report.Print(final)
}
