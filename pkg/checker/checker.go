// Package checker implements the stateful invariant scanners that replay
// an executor's instrumented event log and verify that its concurrency
// and lifecycle invariants held during execution.
//
// Each checker is an independent consumer of the same ordered line
// stream and owns an isolated derived-state table; checkers never share
// state. Structural violations observed mid-scan are fatal for that
// checker's run, since once the derived model diverges from reality any
// subsequent check is meaningless. Anomalies that can only be known once
// the whole log has been seen (open spans, nonzero pending counts) are
// collected after the pass instead.
package checker

import (
	"time"

	"github.com/tracecheck/tracecheck/internal/model"
)

// Checker verifies one invariant family over an event stream.
type Checker interface {
	// Name identifies the checker in results and reports.
	Name() string

	// Observe feeds one event. Events of kinds the checker does not
	// handle are ignored. A non-nil return is a fatal structural
	// violation: the checker's model has diverged and the scan must
	// abort for this checker.
	Observe(ev model.Event) *model.Violation

	// Finish returns end-of-stream anomalies after a complete pass.
	// It must not be called after a fatal violation.
	Finish() []model.Violation

	// EventsMatched returns how many events this checker consumed.
	EventsMatched() int64

	// Snapshot serializes the checker's derived state so a scan over a
	// growing log can resume where it left off.
	Snapshot() ([]byte, error)

	// Restore replaces the checker's derived state with a snapshot.
	Restore(data []byte) error
}

// Result is the unified outcome of one checker's run.
type Result struct {
	Checker       string            `json:"checker"`
	Passed        bool              `json:"passed"`
	Aborted       bool              `json:"aborted"`
	EventsMatched int64             `json:"events_matched"`
	Duration      time.Duration     `json:"duration"`
	Violations    []model.Violation `json:"violations,omitempty"`

	// Registry holds the kernel cache contents at end of stream for the
	// kernel cache checker: the kernels still legitimately cached, not
	// an error signal by itself.
	Registry map[string]string `json:"registry,omitempty"`
}

// RunReport aggregates the results of every checker run over one log.
type RunReport struct {
	Log          string        `json:"log"`
	LinesScanned int64         `json:"lines_scanned"`
	BytesRead    int64         `json:"bytes_read"`
	Duration     time.Duration `json:"duration"`
	Results      []Result      `json:"results"`
}

// Passed reports whether every checker passed.
func (r *RunReport) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// ViolationCount returns the total violations across all checkers.
func (r *RunReport) ViolationCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Violations)
	}
	return n
}
