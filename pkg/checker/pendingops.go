package checker

import (
	"encoding/json"
	"sort"

	"github.com/tracecheck/tracecheck/internal/model"
)

// PendingOpsChecker verifies per-node execution reference counts: a
// process event increments a node's pending count, a propagate-outputs
// event decrements it. The executor guarantees a node cannot complete
// work it never started, so a decrement at zero is fatal. At end of
// stream every node's count must be back to zero.
//
// This realizes a reference-counting integrity check across a log
// instead of live memory.
type PendingOpsChecker struct {
	counts map[string]int64

	// evidence holds every raw line that touched a node, in file order,
	// kept regardless of outcome so an operator can diagnose a reported
	// imbalance without re-deriving state by hand.
	evidence map[string][]model.Line

	matched int64
}

// NewPendingOpsChecker creates a pending-ops checker with empty state.
func NewPendingOpsChecker() *PendingOpsChecker {
	return &PendingOpsChecker{
		counts:   make(map[string]int64),
		evidence: make(map[string][]model.Line),
	}
}

// Name implements Checker.
func (c *PendingOpsChecker) Name() string { return "pendingops" }

// Observe implements Checker.
func (c *PendingOpsChecker) Observe(ev model.Event) *model.Violation {
	switch ev.Kind {
	case model.KindNodeProcess:
		c.matched++
		c.counts[ev.Node]++
		c.evidence[ev.Node] = append(c.evidence[ev.Node], ev.Line)
	case model.KindNodePropagate:
		c.matched++
		c.evidence[ev.Node] = append(c.evidence[ev.Node], ev.Line)
		if c.counts[ev.Node] == 0 {
			return &model.Violation{
				Kind:     model.ViolationRefCountNegative,
				Checker:  c.Name(),
				Line:     ev.Line,
				Node:     ev.Node,
				Evidence: c.evidence[ev.Node],
			}
		}
		c.counts[ev.Node]--
	}
	return nil
}

// Finish implements Checker. Counts are non-negative by construction
// because the decrement-at-zero case is fatal instead of tolerated, so
// every reported imbalance is starts exceeding ends.
func (c *PendingOpsChecker) Finish() []model.Violation {
	var violations []model.Violation
	for _, node := range c.sortedNodes() {
		if c.counts[node] == 0 {
			continue
		}
		violations = append(violations, model.Violation{
			Kind:     model.ViolationRefCountUnbalanced,
			Checker:  c.Name(),
			Node:     node,
			Count:    c.counts[node],
			Evidence: c.evidence[node],
		})
	}
	return violations
}

// EventsMatched implements Checker.
func (c *PendingOpsChecker) EventsMatched() int64 { return c.matched }

// Remaining returns every node whose pending count is nonzero.
func (c *PendingOpsChecker) Remaining() map[string]int64 {
	remaining := make(map[string]int64)
	for node, count := range c.counts {
		if count != 0 {
			remaining[node] = count
		}
	}
	return remaining
}

// Evidence returns the lines that touched node, in file order.
func (c *PendingOpsChecker) Evidence(node string) []model.Line {
	return c.evidence[node]
}

func (c *PendingOpsChecker) sortedNodes() []string {
	nodes := make([]string, 0, len(c.counts))
	for node := range c.counts {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

type pendingOpsState struct {
	Counts   map[string]int64        `json:"counts"`
	Evidence map[string][]model.Line `json:"evidence"`
	Matched  int64                   `json:"matched"`
}

// Snapshot implements Checker.
func (c *PendingOpsChecker) Snapshot() ([]byte, error) {
	return json.Marshal(pendingOpsState{
		Counts:   c.counts,
		Evidence: c.evidence,
		Matched:  c.matched,
	})
}

// Restore implements Checker.
func (c *PendingOpsChecker) Restore(data []byte) error {
	var st pendingOpsState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	c.counts = st.Counts
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.evidence = st.Evidence
	if c.evidence == nil {
		c.evidence = make(map[string][]model.Line)
	}
	c.matched = st.Matched
	return nil
}
