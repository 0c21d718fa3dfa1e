package checker

import (
	"encoding/json"

	"github.com/tracecheck/tracecheck/internal/model"
)

// KernelCacheChecker models the executor's kernel cache as a registry
// from opaque kernel address to the operation descriptor it was created
// for. The cached descriptor must be referentially stable for the
// lifetime of an address, and every lookup or eviction must be preceded
// by a creation. Address reuse after deletion is legal and expected;
// kernel addresses are recycled by the underlying allocator.
//
// A create overwrites any existing entry unconditionally, with no
// prior-existence check. This asymmetry with Found/Deleted (which
// strictly enforce op equality) is the executor's documented behavior:
// re-creation legitimately replaces identity.
type KernelCacheChecker struct {
	registry map[string]string
	matched  int64
}

// NewKernelCacheChecker creates a kernel cache checker with an empty
// registry.
func NewKernelCacheChecker() *KernelCacheChecker {
	return &KernelCacheChecker{registry: make(map[string]string)}
}

// Name implements Checker.
func (c *KernelCacheChecker) Name() string { return "kernelcache" }

// Observe implements Checker. The two failure modes are distinguished
// because they point to different root causes: a missing entry means a
// creation event never happened (or the address was already evicted),
// while an op mismatch means the cached descriptor silently changed.
func (c *KernelCacheChecker) Observe(ev model.Event) *model.Violation {
	switch ev.Kind {
	case model.KindKernelCreate:
		c.matched++
		c.registry[ev.Kernel] = ev.Op
	case model.KindKernelFound:
		c.matched++
		return c.verify(ev)
	case model.KindKernelDeleted:
		c.matched++
		if v := c.verify(ev); v != nil {
			return v
		}
		delete(c.registry, ev.Kernel)
	}
	return nil
}

// verify checks the shared find/delete preconditions: the address must
// be registered and its op must match exactly.
func (c *KernelCacheChecker) verify(ev model.Event) *model.Violation {
	op, ok := c.registry[ev.Kernel]
	if !ok {
		return &model.Violation{
			Kind:     model.ViolationKernelMissing,
			Checker:  c.Name(),
			Line:     ev.Line,
			Kernel:   ev.Kernel,
			ActualOp: ev.Op,
		}
	}
	if op != ev.Op {
		return &model.Violation{
			Kind:       model.ViolationKernelOpChanged,
			Checker:    c.Name(),
			Line:       ev.Line,
			Kernel:     ev.Kernel,
			ExpectedOp: op,
			ActualOp:   ev.Op,
		}
	}
	return nil
}

// Finish implements Checker. Entries still registered at end of stream
// are whatever kernels are legitimately cached, not an anomaly.
func (c *KernelCacheChecker) Finish() []model.Violation { return nil }

// EventsMatched implements Checker.
func (c *KernelCacheChecker) EventsMatched() int64 { return c.matched }

// Registry returns a copy of the live registry contents.
func (c *KernelCacheChecker) Registry() map[string]string {
	out := make(map[string]string, len(c.registry))
	for addr, op := range c.registry {
		out[addr] = op
	}
	return out
}

type kernelCacheState struct {
	Registry map[string]string `json:"registry"`
	Matched  int64             `json:"matched"`
}

// Snapshot implements Checker.
func (c *KernelCacheChecker) Snapshot() ([]byte, error) {
	return json.Marshal(kernelCacheState{Registry: c.registry, Matched: c.matched})
}

// Restore implements Checker.
func (c *KernelCacheChecker) Restore(data []byte) error {
	var st kernelCacheState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	c.registry = st.Registry
	if c.registry == nil {
		c.registry = make(map[string]string)
	}
	c.matched = st.Matched
	return nil
}
