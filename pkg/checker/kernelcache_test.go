package checker

import (
	"testing"

	"github.com/tracecheck/tracecheck/internal/model"
)

func kernelEvent(kind model.Kind, addr, op string, lineNo int) model.Event {
	return model.Event{
		Kind:   kind,
		Kernel: addr,
		Op:     op,
		Line:   model.Line{Text: op, Number: lineNo},
	}
}

func TestKernelCacheChecker_CreateFindDelete(t *testing.T) {
	c := NewKernelCacheChecker()

	events := []model.Event{
		kernelEvent(model.KindKernelCreate, "0xa0", "matmul 64x64", 1),
		kernelEvent(model.KindKernelFound, "0xa0", "matmul 64x64", 2),
		kernelEvent(model.KindKernelFound, "0xa0", "matmul 64x64", 3),
		kernelEvent(model.KindKernelDeleted, "0xa0", "matmul 64x64", 4),
	}

	for _, ev := range events {
		if v := c.Observe(ev); v != nil {
			t.Fatalf("Unexpected violation: %s", v.Message())
		}
	}

	if len(c.Registry()) != 0 {
		t.Errorf("Expected empty registry after delete, got %v", c.Registry())
	}
	if violations := c.Finish(); violations != nil {
		t.Errorf("Expected nil from Finish, got %v", violations)
	}
}

func TestKernelCacheChecker_FoundUnknownAddress(t *testing.T) {
	c := NewKernelCacheChecker()

	v := c.Observe(kernelEvent(model.KindKernelFound, "0xdead", "softmax", 1))
	if v == nil {
		t.Fatal("Expected violation for lookup of unknown address")
	}
	if v.Kind != model.ViolationKernelMissing {
		t.Errorf("Expected ViolationKernelMissing, got %v", v.Kind)
	}
	if v.Kernel != "0xdead" {
		t.Errorf("Expected kernel 0xdead, got %q", v.Kernel)
	}
	if !v.Kind.Fatal() {
		t.Error("Expected missing kernel to be fatal")
	}
}

func TestKernelCacheChecker_FoundOpMismatch(t *testing.T) {
	c := NewKernelCacheChecker()

	c.Observe(kernelEvent(model.KindKernelCreate, "0xa0", "matmul 64x64", 1))
	v := c.Observe(kernelEvent(model.KindKernelFound, "0xa0", "matmul 128x128", 2))
	if v == nil {
		t.Fatal("Expected violation for op mismatch")
	}
	if v.Kind != model.ViolationKernelOpChanged {
		t.Errorf("Expected ViolationKernelOpChanged, got %v", v.Kind)
	}
	if v.ExpectedOp != "matmul 64x64" {
		t.Errorf("Expected expected op matmul 64x64, got %q", v.ExpectedOp)
	}
	if v.ActualOp != "matmul 128x128" {
		t.Errorf("Expected actual op matmul 128x128, got %q", v.ActualOp)
	}
}

func TestKernelCacheChecker_DeleteOpMismatchKeepsEntry(t *testing.T) {
	c := NewKernelCacheChecker()

	c.Observe(kernelEvent(model.KindKernelCreate, "0xa0", "relu", 1))
	v := c.Observe(kernelEvent(model.KindKernelDeleted, "0xa0", "gelu", 2))
	if v == nil {
		t.Fatal("Expected violation for delete op mismatch")
	}
	if v.Kind != model.ViolationKernelOpChanged {
		t.Errorf("Expected ViolationKernelOpChanged, got %v", v.Kind)
	}

	// The mismatched delete must not evict the entry.
	if got := c.Registry()["0xa0"]; got != "relu" {
		t.Errorf("Expected entry to survive failed delete, registry has %q", got)
	}
}

func TestKernelCacheChecker_DeleteUnknownAddress(t *testing.T) {
	c := NewKernelCacheChecker()

	v := c.Observe(kernelEvent(model.KindKernelDeleted, "0xbeef", "conv", 1))
	if v == nil {
		t.Fatal("Expected violation for delete of unknown address")
	}
	if v.Kind != model.ViolationKernelMissing {
		t.Errorf("Expected ViolationKernelMissing, got %v", v.Kind)
	}
}

func TestKernelCacheChecker_AddressReuse(t *testing.T) {
	c := NewKernelCacheChecker()

	// The allocator recycles addresses; a fresh create after delete
	// rebinds the address to a new op.
	events := []model.Event{
		kernelEvent(model.KindKernelCreate, "0xa0", "matmul", 1),
		kernelEvent(model.KindKernelDeleted, "0xa0", "matmul", 2),
		kernelEvent(model.KindKernelCreate, "0xa0", "softmax", 3),
		kernelEvent(model.KindKernelFound, "0xa0", "softmax", 4),
	}

	for _, ev := range events {
		if v := c.Observe(ev); v != nil {
			t.Fatalf("Unexpected violation: %s", v.Message())
		}
	}
}

func TestKernelCacheChecker_CreateOverwrites(t *testing.T) {
	c := NewKernelCacheChecker()

	// Unlike Found and Deleted, Created never checks prior state; the
	// new descriptor simply replaces the old one.
	c.Observe(kernelEvent(model.KindKernelCreate, "0xa0", "matmul", 1))
	if v := c.Observe(kernelEvent(model.KindKernelCreate, "0xa0", "softmax", 2)); v != nil {
		t.Fatalf("Expected re-create to be tolerated, got %s", v.Message())
	}

	if v := c.Observe(kernelEvent(model.KindKernelFound, "0xa0", "matmul", 3)); v == nil {
		t.Error("Expected lookup of the replaced op to fail")
	}
	if v := c.Observe(kernelEvent(model.KindKernelFound, "0xa0", "softmax", 4)); v != nil {
		t.Errorf("Expected lookup of current op to pass, got %s", v.Message())
	}
}

func TestKernelCacheChecker_ResidentAtEOFIsClean(t *testing.T) {
	c := NewKernelCacheChecker()

	c.Observe(kernelEvent(model.KindKernelCreate, "0xa0", "matmul", 1))
	c.Observe(kernelEvent(model.KindKernelCreate, "0xb0", "softmax", 2))

	if violations := c.Finish(); len(violations) != 0 {
		t.Errorf("Expected resident kernels at EOF to be clean, got %d violations", len(violations))
	}
	if len(c.Registry()) != 2 {
		t.Errorf("Expected 2 resident kernels, got %d", len(c.Registry()))
	}
}

func TestKernelCacheChecker_SnapshotRestore(t *testing.T) {
	c := NewKernelCacheChecker()
	c.Observe(kernelEvent(model.KindKernelCreate, "0xa0", "matmul", 1))
	c.Observe(kernelEvent(model.KindKernelCreate, "0xb0", "softmax", 2))

	data, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := NewKernelCacheChecker()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if v := restored.Observe(kernelEvent(model.KindKernelFound, "0xa0", "matmul", 3)); v != nil {
		t.Fatalf("Unexpected violation after restore: %s", v.Message())
	}
	if restored.EventsMatched() != 3 {
		t.Errorf("Expected 3 matched events after restore, got %d", restored.EventsMatched())
	}
}
