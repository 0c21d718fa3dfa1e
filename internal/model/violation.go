package model

import (
	"fmt"
	"strings"
)

// ViolationKind classifies a detected deviation between the log and the
// expected lifecycle/refcount model.
type ViolationKind uint8

const (
	// ViolationSpanEndWithoutStart: a span end event with no open start.
	// Fatal for the scan.
	ViolationSpanEndWithoutStart ViolationKind = iota

	// ViolationSpanLeaked: a span still open at end of stream.
	ViolationSpanLeaked

	// ViolationRefCountNegative: a propagate event for a node whose
	// pending count is already zero. Fatal for the scan.
	ViolationRefCountNegative

	// ViolationRefCountUnbalanced: a node with a nonzero pending count
	// at end of stream.
	ViolationRefCountUnbalanced

	// ViolationKernelMissing: a find/delete against an address that was
	// never created (or was already deleted). Fatal for the scan.
	ViolationKernelMissing

	// ViolationKernelOpChanged: a find/delete whose op descriptor does
	// not match the one the address was created with. Fatal for the scan.
	ViolationKernelOpChanged
)

// String returns the violation kind name.
func (k ViolationKind) String() string {
	switch k {
	case ViolationSpanEndWithoutStart:
		return "span_end_without_start"
	case ViolationSpanLeaked:
		return "span_leaked"
	case ViolationRefCountNegative:
		return "refcount_negative"
	case ViolationRefCountUnbalanced:
		return "refcount_unbalanced"
	case ViolationKernelMissing:
		return "kernel_missing"
	case ViolationKernelOpChanged:
		return "kernel_op_changed"
	default:
		return "unknown"
	}
}

// Fatal reports whether this violation kind aborts the scan. End-of-stream
// anomalies can only be known after the full pass and are collected instead.
func (k ViolationKind) Fatal() bool {
	switch k {
	case ViolationSpanEndWithoutStart, ViolationRefCountNegative,
		ViolationKernelMissing, ViolationKernelOpChanged:
		return true
	default:
		return false
	}
}

// Violation records a single invariant violation with enough context to
// locate the offending event in the original log.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Checker string        `json:"checker"`

	// Line is the log line that triggered the violation. End-of-stream
	// anomalies have no single triggering line and leave it zero.
	Line Line `json:"line,omitempty"`

	// Identifiers involved; population depends on Kind.
	Seq        uint64 `json:"seq,omitempty"`
	Node       string `json:"node,omitempty"`
	Kernel     string `json:"kernel,omitempty"`
	ExpectedOp string `json:"expected_op,omitempty"`
	ActualOp   string `json:"actual_op,omitempty"`

	// Count is the final pending count for refcount anomalies.
	Count int64 `json:"count,omitempty"`

	// Evidence holds the raw log lines that touched the identifier, in
	// file order, for refcount anomalies.
	Evidence []Line `json:"evidence,omitempty"`
}

// Message renders a human-readable description of the violation.
func (v Violation) Message() string {
	var sb strings.Builder
	switch v.Kind {
	case ViolationSpanEndWithoutStart:
		fmt.Fprintf(&sb, "span end without matching start: seq %d", v.Seq)
	case ViolationSpanLeaked:
		fmt.Fprintf(&sb, "span never closed: seq %d", v.Seq)
	case ViolationRefCountNegative:
		fmt.Fprintf(&sb, "propagate for node with no pending process: %s", v.Node)
	case ViolationRefCountUnbalanced:
		fmt.Fprintf(&sb, "node with unbalanced pending count: %s (count %d)", v.Node, v.Count)
	case ViolationKernelMissing:
		fmt.Fprintf(&sb, "%s nonexistent kernel: %s %s", v.kernelVerb(), v.Kernel, v.ActualOp)
	case ViolationKernelOpChanged:
		fmt.Fprintf(&sb, "%s kernel with changed op: %s expected %q actual %q",
			v.kernelVerb(), v.Kernel, v.ExpectedOp, v.ActualOp)
	default:
		sb.WriteString("unknown violation")
	}
	if v.Line.Number > 0 {
		fmt.Fprintf(&sb, " (line %d: %s)", v.Line.Number, v.Line.Text)
	}
	return sb.String()
}

func (v Violation) kernelVerb() string {
	if strings.Contains(v.Line.Text, "Deleted kernel") {
		return "deleted"
	}
	return "found"
}
