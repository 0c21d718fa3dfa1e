package checker

import (
	"encoding/json"
	"sort"

	"github.com/tracecheck/tracecheck/internal/model"
)

// SpanChecker tracks open task execution spans keyed by sequence id. A
// span opens on a start event and must be closed by a later end event
// with the same id; spans still open at end of stream are leaked tasks.
type SpanChecker struct {
	// open maps a sequence id to the line that opened it.
	open map[uint64]model.Line

	// duplicateStarts counts start events for an already-open seq.
	// Sequence ids are not required to be globally unique across the
	// whole file, so a re-start over an open span is tolerated as a
	// no-op rather than raised.
	duplicateStarts int64

	matched int64
}

// NewSpanChecker creates a span checker with empty state.
func NewSpanChecker() *SpanChecker {
	return &SpanChecker{open: make(map[uint64]model.Line)}
}

// Name implements Checker.
func (c *SpanChecker) Name() string { return "threadpool" }

// Observe implements Checker. An end event with no open start means the
// log itself is inconsistent with the span model and is fatal.
func (c *SpanChecker) Observe(ev model.Event) *model.Violation {
	switch ev.Kind {
	case model.KindThreadStart:
		c.matched++
		if _, ok := c.open[ev.Seq]; ok {
			c.duplicateStarts++
		}
		c.open[ev.Seq] = ev.Line
	case model.KindThreadEnd:
		c.matched++
		if _, ok := c.open[ev.Seq]; !ok {
			return &model.Violation{
				Kind:    model.ViolationSpanEndWithoutStart,
				Checker: c.Name(),
				Line:    ev.Line,
				Seq:     ev.Seq,
			}
		}
		delete(c.open, ev.Seq)
	}
	return nil
}

// Finish implements Checker. Every remaining open span is a task that
// started but was never observed to finish.
func (c *SpanChecker) Finish() []model.Violation {
	if len(c.open) == 0 {
		return nil
	}
	violations := make([]model.Violation, 0, len(c.open))
	for _, seq := range c.OpenSpans() {
		violations = append(violations, model.Violation{
			Kind:    model.ViolationSpanLeaked,
			Checker: c.Name(),
			Line:    c.open[seq],
			Seq:     seq,
		})
	}
	return violations
}

// EventsMatched implements Checker.
func (c *SpanChecker) EventsMatched() int64 { return c.matched }

// OpenSpans returns the currently open sequence ids in ascending order.
func (c *SpanChecker) OpenSpans() []uint64 {
	seqs := make([]uint64, 0, len(c.open))
	for seq := range c.open {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// DuplicateStarts returns how many start events re-opened an already
// open seq.
func (c *SpanChecker) DuplicateStarts() int64 { return c.duplicateStarts }

type spanState struct {
	Open            map[uint64]model.Line `json:"open"`
	DuplicateStarts int64                 `json:"duplicate_starts"`
	Matched         int64                 `json:"matched"`
}

// Snapshot implements Checker.
func (c *SpanChecker) Snapshot() ([]byte, error) {
	return json.Marshal(spanState{
		Open:            c.open,
		DuplicateStarts: c.duplicateStarts,
		Matched:         c.matched,
	})
}

// Restore implements Checker.
func (c *SpanChecker) Restore(data []byte) error {
	var st spanState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	c.open = st.Open
	if c.open == nil {
		c.open = make(map[uint64]model.Line)
	}
	c.duplicateStarts = st.DuplicateStarts
	c.matched = st.Matched
	return nil
}
