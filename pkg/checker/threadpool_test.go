package checker

import (
	"fmt"
	"testing"

	"github.com/tracecheck/tracecheck/internal/model"
)

func spanEvent(kind model.Kind, seq uint64, lineNo int) model.Event {
	return model.Event{
		Kind: kind,
		Seq:  seq,
		Line: model.Line{Text: fmt.Sprintf("seq %d", seq), Number: lineNo},
	}
}

func TestSpanChecker_BalancedSpans(t *testing.T) {
	c := NewSpanChecker()

	events := []model.Event{
		spanEvent(model.KindThreadStart, 1, 1),
		spanEvent(model.KindThreadStart, 2, 2),
		spanEvent(model.KindThreadEnd, 1, 3),
		spanEvent(model.KindThreadEnd, 2, 4),
	}

	for _, ev := range events {
		if v := c.Observe(ev); v != nil {
			t.Fatalf("Unexpected violation: %s", v.Message())
		}
	}

	if violations := c.Finish(); len(violations) != 0 {
		t.Errorf("Expected no violations, got %d", len(violations))
	}
	if c.EventsMatched() != 4 {
		t.Errorf("Expected 4 matched events, got %d", c.EventsMatched())
	}
}

func TestSpanChecker_EndWithoutStart(t *testing.T) {
	c := NewSpanChecker()

	v := c.Observe(spanEvent(model.KindThreadEnd, 9, 1))
	if v == nil {
		t.Fatal("Expected violation for end without start")
	}
	if v.Kind != model.ViolationSpanEndWithoutStart {
		t.Errorf("Expected ViolationSpanEndWithoutStart, got %v", v.Kind)
	}
	if v.Seq != 9 {
		t.Errorf("Expected seq 9, got %d", v.Seq)
	}
	if !v.Kind.Fatal() {
		t.Error("Expected end-without-start to be fatal")
	}
}

func TestSpanChecker_LeakedSpans(t *testing.T) {
	c := NewSpanChecker()

	c.Observe(spanEvent(model.KindThreadStart, 5, 1))
	c.Observe(spanEvent(model.KindThreadStart, 3, 2))
	c.Observe(spanEvent(model.KindThreadStart, 8, 3))
	c.Observe(spanEvent(model.KindThreadEnd, 5, 4))

	violations := c.Finish()
	if len(violations) != 2 {
		t.Fatalf("Expected 2 leaked spans, got %d", len(violations))
	}

	// Leaks reported in ascending seq order.
	if violations[0].Seq != 3 || violations[1].Seq != 8 {
		t.Errorf("Expected leaks for seqs 3 and 8, got %d and %d",
			violations[0].Seq, violations[1].Seq)
	}
	for _, v := range violations {
		if v.Kind != model.ViolationSpanLeaked {
			t.Errorf("Expected ViolationSpanLeaked, got %v", v.Kind)
		}
		if v.Kind.Fatal() {
			t.Error("Expected leaked span to be non-fatal")
		}
	}
}

func TestSpanChecker_SeqReuseAfterClose(t *testing.T) {
	c := NewSpanChecker()

	for i := 0; i < 3; i++ {
		if v := c.Observe(spanEvent(model.KindThreadStart, 1, i*2+1)); v != nil {
			t.Fatalf("Unexpected violation on reuse: %s", v.Message())
		}
		if v := c.Observe(spanEvent(model.KindThreadEnd, 1, i*2+2)); v != nil {
			t.Fatalf("Unexpected violation on reuse: %s", v.Message())
		}
	}

	if violations := c.Finish(); len(violations) != 0 {
		t.Errorf("Expected seq reuse to be clean, got %d violations", len(violations))
	}
	if c.DuplicateStarts() != 0 {
		t.Errorf("Expected no duplicate starts, got %d", c.DuplicateStarts())
	}
}

func TestSpanChecker_DuplicateStartTolerated(t *testing.T) {
	c := NewSpanChecker()

	c.Observe(spanEvent(model.KindThreadStart, 4, 1))
	if v := c.Observe(spanEvent(model.KindThreadStart, 4, 2)); v != nil {
		t.Fatalf("Expected duplicate start to be tolerated, got %s", v.Message())
	}
	if c.DuplicateStarts() != 1 {
		t.Errorf("Expected 1 duplicate start, got %d", c.DuplicateStarts())
	}

	// The later start owns the span; one end closes it.
	c.Observe(spanEvent(model.KindThreadEnd, 4, 3))
	if violations := c.Finish(); len(violations) != 0 {
		t.Errorf("Expected no violations after close, got %d", len(violations))
	}
}

func TestSpanChecker_SnapshotRestore(t *testing.T) {
	c := NewSpanChecker()
	c.Observe(spanEvent(model.KindThreadStart, 10, 1))
	c.Observe(spanEvent(model.KindThreadStart, 11, 2))
	c.Observe(spanEvent(model.KindThreadEnd, 10, 3))

	data, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := NewSpanChecker()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	open := restored.OpenSpans()
	if len(open) != 1 || open[0] != 11 {
		t.Fatalf("Expected restored open span 11, got %v", open)
	}
	if restored.EventsMatched() != 3 {
		t.Errorf("Expected 3 matched events after restore, got %d", restored.EventsMatched())
	}

	// The restored checker continues exactly where the original stopped.
	if v := restored.Observe(spanEvent(model.KindThreadEnd, 11, 4)); v != nil {
		t.Fatalf("Unexpected violation after restore: %s", v.Message())
	}
	if violations := restored.Finish(); len(violations) != 0 {
		t.Errorf("Expected no violations, got %d", len(violations))
	}
}
