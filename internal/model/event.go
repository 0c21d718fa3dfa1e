// Package model defines core data structures for tracecheck.
package model

// Line is a single raw log line. Lines are immutable and consumed in
// file order; Number is 1-based.
type Line struct {
	// Text is the raw line with the trailing newline stripped.
	Text string `json:"text"`

	// Number is the 1-based position of the line in the source file.
	Number int `json:"number"`

	// File is the path the line was read from.
	File string `json:"file,omitempty"`

	// Offset is the byte offset of the end of this line in the source
	// file. Scanner bookkeeping for resume positions, not evidence.
	Offset int64 `json:"-"`
}

// Kind identifies the event category a log line matched.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Threadpool task span events.
	KindThreadStart
	KindThreadEnd

	// Pending-operation refcount events.
	KindNodeProcess
	KindNodePropagate

	// Kernel cache events.
	KindKernelCreate
	KindKernelFound
	KindKernelDeleted
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindThreadStart:
		return "thread_start"
	case KindThreadEnd:
		return "thread_end"
	case KindNodeProcess:
		return "node_process"
	case KindNodePropagate:
		return "node_propagate"
	case KindKernelCreate:
		return "kernel_create"
	case KindKernelFound:
		return "kernel_found"
	case KindKernelDeleted:
		return "kernel_deleted"
	default:
		return "unknown"
	}
}

// Event is the structured form of a matched log line. Only the fields
// relevant to the Kind are populated.
type Event struct {
	Kind Kind

	// Seq is the task sequence id (thread span events).
	Seq uint64

	// Node is the graph node name (pending-op events).
	Node string

	// Kernel is the opaque kernel address token (kernel cache events).
	Kernel string

	// Op is the operation descriptor the kernel was created for.
	Op string

	// Line is the log line the event was derived from.
	Line Line
}
