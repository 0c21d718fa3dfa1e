// Package grammar classifies raw log lines against the fixed catalog of
// event patterns emitted by the instrumented executor and extracts their
// structured fields.
package grammar

import (
	"regexp"
	"strconv"

	"github.com/tracecheck/tracecheck/internal/model"
	"github.com/tracecheck/tracecheck/pkg/errors"
)

// DefaultThreadpoolName is the pool name the executor logs span events
// under unless instrumented otherwise.
const DefaultThreadpoolName = "Threadpool"

// Options configures catalog construction.
type Options struct {
	// ThreadpoolName overrides the pool name in the span grammar.
	// Empty means DefaultThreadpoolName.
	ThreadpoolName string
}

// rule pairs a compiled pattern with the constructor that turns its
// captures into an Event.
type rule struct {
	re   *regexp.Regexp
	make func(m []string, line model.Line) (model.Event, error)
}

// Catalog is a stateless line classifier. A Catalog is safe for
// concurrent use and is shared by every checker.
type Catalog struct {
	rules []rule
}

// NewCatalog builds the event catalog.
func NewCatalog(opts Options) *Catalog {
	name := opts.ThreadpoolName
	if name == "" {
		name = DefaultThreadpoolName
	}

	return &Catalog{rules: []rule{
		{
			re: regexp.MustCompile(regexp.QuoteMeta(name) + ` (start|end) to run seq (\d+)`),
			make: func(m []string, line model.Line) (model.Event, error) {
				seq, err := strconv.ParseUint(m[2], 10, 64)
				if err != nil {
					return model.Event{}, errors.ParseError("threadpool", line.Number, line.Text)
				}
				kind := model.KindThreadStart
				if m[1] == "end" {
					kind = model.KindThreadEnd
				}
				return model.Event{Kind: kind, Seq: seq, Line: line}, nil
			},
		},
		{
			re: regexp.MustCompile(`Process node: ([^ \[]+) `),
			make: func(m []string, line model.Line) (model.Event, error) {
				if m[1] == "" {
					return model.Event{}, errors.ParseError("process-node", line.Number, line.Text)
				}
				return model.Event{Kind: model.KindNodeProcess, Node: m[1], Line: line}, nil
			},
		},
		{
			re: regexp.MustCompile(`Propagate outputs for node: (.+)`),
			make: func(m []string, line model.Line) (model.Event, error) {
				if m[1] == "" {
					return model.Event{}, errors.ParseError("propagate-node", line.Number, line.Text)
				}
				return model.Event{Kind: model.KindNodePropagate, Node: m[1], Line: line}, nil
			},
		},
		{
			re:   regexp.MustCompile(`Created kernel: (\S+) (.+)`),
			make: kernelEvent(model.KindKernelCreate, "kernel-create"),
		},
		{
			re:   regexp.MustCompile(`Found cached kernel: (\S+) (.+)`),
			make: kernelEvent(model.KindKernelFound, "kernel-found"),
		},
		{
			re:   regexp.MustCompile(`Deleted kernel: (\S+) (.+)`),
			make: kernelEvent(model.KindKernelDeleted, "kernel-deleted"),
		},
	}}
}

// kernelEvent builds a constructor for the three kernel cache grammars,
// which share the same field shape.
func kernelEvent(kind model.Kind, pattern string) func([]string, model.Line) (model.Event, error) {
	return func(m []string, line model.Line) (model.Event, error) {
		if m[1] == "" || m[2] == "" {
			return model.Event{}, errors.ParseError(pattern, line.Number, line.Text)
		}
		return model.Event{Kind: kind, Kernel: m[1], Op: m[2], Line: line}, nil
	}
}

// Parse tests line against every pattern in the catalog and returns the
// first match as an Event. The second return is false when no pattern
// matched; such lines carry no event and are ignored by checkers. A
// matched line whose required captures cannot be extracted returns a
// ParseError and is never silently dropped.
func (c *Catalog) Parse(line model.Line) (model.Event, bool, error) {
	for _, r := range c.rules {
		m := r.re.FindStringSubmatch(line.Text)
		if m == nil {
			continue
		}
		ev, err := r.make(m, line)
		if err != nil {
			return model.Event{}, false, err
		}
		return ev, true, nil
	}
	return model.Event{}, false, nil
}
