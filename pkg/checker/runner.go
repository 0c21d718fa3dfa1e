package checker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tracecheck/tracecheck/internal/model"
	"github.com/tracecheck/tracecheck/pkg/grammar"
	"github.com/tracecheck/tracecheck/pkg/scan"
)

// eventBufferSize is the per-checker event channel depth.
const eventBufferSize = 1024

// progressEvery is how many lines pass between progress callbacks.
const progressEvery = 8192

// Runner replays a log through the grammar catalog once and fans the
// parsed events out to every checker. Checkers consume on their own
// goroutines over private channels, so they stay isolated from each
// other exactly as if they had each scanned the file alone.
type Runner struct {
	catalog     *grammar.Catalog
	checkers    []Checker
	progress    func(lines, bytes int64)
	incremental bool

	// Position of the last line delivered to every checker. This, not
	// the scanner's read-ahead position, is the resume point: lines
	// still buffered in channels at cancellation were never observed.
	deliveredLines  atomic.Int64
	deliveredOffset atomic.Int64
}

// NewRunner creates a runner over the given checkers.
func NewRunner(catalog *grammar.Catalog, checkers ...Checker) *Runner {
	return &Runner{catalog: catalog, checkers: checkers}
}

// SetProgressCallback registers a callback invoked periodically with the
// number of lines and bytes consumed so far.
func (r *Runner) SetProgressCallback(fn func(lines, bytes int64)) {
	r.progress = fn
}

// SetIncremental marks this run as a pass over a still-growing log.
// End-of-stream anomalies (open spans, nonzero pending counts) are
// unknowable mid-stream and are skipped; fatal violations still abort.
func (r *Runner) SetIncremental(incremental bool) {
	r.incremental = incremental
}

// Checkers returns the checkers owned by this runner.
func (r *Runner) Checkers() []Checker { return r.checkers }

// Position returns the byte offset and line count of the last line
// every checker was handed. After a completed run it equals the
// scanner's position; after a cancelled run it is the safe resume
// point, since buffered but undelivered lines were dropped unseen.
func (r *Runner) Position() (offset, lines int64) {
	return r.deliveredOffset.Load(), r.deliveredLines.Load()
}

// CheckFile runs every checker over the log at path in a single pass.
func (r *Runner) CheckFile(ctx context.Context, path string) (*RunReport, error) {
	sc, err := scan.Open(path)
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	return r.CheckScanner(ctx, sc)
}

// CheckScanner runs every checker over an already-open scanner. The
// caller retains ownership of the scanner; this is the entry point for
// resumed and incremental scans.
func (r *Runner) CheckScanner(ctx context.Context, sc *scan.Scanner) (*RunReport, error) {
	start := time.Now()

	// Starts from the scanner's resume position so Position is valid
	// even when cancellation lands before the first delivery.
	r.deliveredOffset.Store(sc.Offset())
	r.deliveredLines.Store(sc.Lines())

	g, ctx := errgroup.WithContext(ctx)

	lines := make(chan model.Line, eventBufferSize)
	g.Go(func() error {
		defer close(lines)
		return sc.Run(ctx, lines)
	})

	events := make([]chan model.Event, len(r.checkers))
	for i := range r.checkers {
		events[i] = make(chan model.Event, eventBufferSize)
	}

	// Parse each line once and fan the event out to every checker.
	g.Go(func() error {
		defer func() {
			for _, ch := range events {
				close(ch)
			}
		}()

		var n int64
		for line := range lines {
			n++

			ev, ok, err := r.catalog.Parse(line)
			if err != nil {
				return err
			}

			if ok {
				// Delivery is all-or-nothing per line: cancellation is
				// honored only between lines, and the sends below always
				// complete because checkers drain until channel close.
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				for _, ch := range events {
					ch <- ev
				}
			}

			r.deliveredLines.Store(int64(line.Number))
			r.deliveredOffset.Store(line.Offset)

			if r.progress != nil && n%progressEvery == 0 {
				r.progress(r.deliveredLines.Load(), r.deliveredOffset.Load())
			}
		}
		return nil
	})

	results := make([]Result, len(r.checkers))
	for i, c := range r.checkers {
		i, c, ch := i, c, events[i]
		g.Go(func() error {
			checkerStart := time.Now()
			res := Result{Checker: c.Name()}

			aborted := false
			for ev := range ch {
				if aborted {
					continue // drain so the fan-out never blocks
				}
				if v := c.Observe(ev); v != nil {
					res.Violations = append(res.Violations, *v)
					res.Aborted = true
					aborted = true
				}
			}

			if !aborted && !r.incremental {
				res.Violations = append(res.Violations, c.Finish()...)
			}

			res.EventsMatched = c.EventsMatched()
			res.Passed = len(res.Violations) == 0
			res.Duration = time.Since(checkerStart)

			if kc, ok := c.(interface{ Registry() map[string]string }); ok {
				res.Registry = kc.Registry()
			}

			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &RunReport{
		Log:          sc.Path(),
		LinesScanned: sc.Lines(),
		BytesRead:    sc.Offset(),
		Duration:     time.Since(start),
		Results:      results,
	}, nil
}

// Named builds the checkers selected by name; "all" or an empty list
// selects every checker.
func Named(names ...string) ([]Checker, error) {
	if len(names) == 0 {
		return DefaultCheckers(), nil
	}
	var out []Checker
	for _, name := range names {
		switch name {
		case "all":
			return DefaultCheckers(), nil
		case "threadpool":
			out = append(out, NewSpanChecker())
		case "pendingops":
			out = append(out, NewPendingOpsChecker())
		case "kernelcache":
			out = append(out, NewKernelCacheChecker())
		default:
			return nil, fmt.Errorf("unknown checker: %s", name)
		}
	}
	return out, nil
}

// DefaultCheckers returns all three checkers with fresh state.
func DefaultCheckers() []Checker {
	return []Checker{
		NewSpanChecker(),
		NewPendingOpsChecker(),
		NewKernelCacheChecker(),
	}
}
