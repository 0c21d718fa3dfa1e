package grammar

import (
	"testing"

	"github.com/tracecheck/tracecheck/internal/model"
	"github.com/tracecheck/tracecheck/pkg/errors"
)

func parseText(t *testing.T, c *Catalog, text string) (model.Event, bool) {
	t.Helper()
	ev, ok, err := c.Parse(model.Line{Text: text, Number: 1, File: "test.log"})
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", text, err)
	}
	return ev, ok
}

func TestCatalog_ThreadpoolSpans(t *testing.T) {
	c := NewCatalog(Options{})

	ev, ok := parseText(t, c, "[2024-01-12 09:33:01] Threadpool start to run seq 42 on worker 3")
	if !ok {
		t.Fatal("Expected start line to match")
	}
	if ev.Kind != model.KindThreadStart {
		t.Errorf("Expected KindThreadStart, got %v", ev.Kind)
	}
	if ev.Seq != 42 {
		t.Errorf("Expected seq 42, got %d", ev.Seq)
	}

	ev, ok = parseText(t, c, "Threadpool end to run seq 42")
	if !ok {
		t.Fatal("Expected end line to match")
	}
	if ev.Kind != model.KindThreadEnd {
		t.Errorf("Expected KindThreadEnd, got %v", ev.Kind)
	}
}

func TestCatalog_CustomThreadpoolName(t *testing.T) {
	c := NewCatalog(Options{ThreadpoolName: "Workerpool"})

	if _, ok := parseText(t, c, "Workerpool start to run seq 7"); !ok {
		t.Error("Expected custom pool name to match")
	}
	if _, ok := parseText(t, c, "Threadpool start to run seq 7"); ok {
		t.Error("Expected default pool name not to match under custom name")
	}
}

func TestCatalog_NodeEvents(t *testing.T) {
	c := NewCatalog(Options{})

	ev, ok := parseText(t, c, "Process node: conv2d_4 [3 inputs, 1 output]")
	if !ok {
		t.Fatal("Expected process line to match")
	}
	if ev.Kind != model.KindNodeProcess {
		t.Errorf("Expected KindNodeProcess, got %v", ev.Kind)
	}
	if ev.Node != "conv2d_4" {
		t.Errorf("Expected node conv2d_4, got %q", ev.Node)
	}

	ev, ok = parseText(t, c, "Propagate outputs for node: conv2d_4")
	if !ok {
		t.Fatal("Expected propagate line to match")
	}
	if ev.Kind != model.KindNodePropagate {
		t.Errorf("Expected KindNodePropagate, got %v", ev.Kind)
	}
	if ev.Node != "conv2d_4" {
		t.Errorf("Expected node conv2d_4, got %q", ev.Node)
	}
}

func TestCatalog_KernelEvents(t *testing.T) {
	c := NewCatalog(Options{})

	tests := []struct {
		text string
		kind model.Kind
	}{
		{"Created kernel: 0x7fab2300 matmul 128x128 fp16", model.KindKernelCreate},
		{"Found cached kernel: 0x7fab2300 matmul 128x128 fp16", model.KindKernelFound},
		{"Deleted kernel: 0x7fab2300 matmul 128x128 fp16", model.KindKernelDeleted},
	}

	for _, tt := range tests {
		ev, ok := parseText(t, c, tt.text)
		if !ok {
			t.Fatalf("Expected %q to match", tt.text)
		}
		if ev.Kind != tt.kind {
			t.Errorf("Expected kind %v for %q, got %v", tt.kind, tt.text, ev.Kind)
		}
		if ev.Kernel != "0x7fab2300" {
			t.Errorf("Expected kernel 0x7fab2300, got %q", ev.Kernel)
		}
		if ev.Op != "matmul 128x128 fp16" {
			t.Errorf("Expected full op descriptor, got %q", ev.Op)
		}
	}
}

func TestCatalog_UnmatchedLines(t *testing.T) {
	c := NewCatalog(Options{})

	unmatched := []string{
		"",
		"executor initialized with 8 workers",
		"Threadpool resumed after pause",
		"Created kernel:",
	}

	for _, text := range unmatched {
		if _, ok := parseText(t, c, text); ok {
			t.Errorf("Expected %q not to match any pattern", text)
		}
	}
}

func TestCatalog_SeqOverflowIsParseError(t *testing.T) {
	c := NewCatalog(Options{})

	line := model.Line{Text: "Threadpool start to run seq 99999999999999999999999", Number: 7}
	_, _, err := c.Parse(line)
	if err == nil {
		t.Fatal("Expected parse error for overflowing seq")
	}
	if !errors.IsCode(err, errors.CodeParseFailed) {
		t.Errorf("Expected CodeParseFailed, got %v", errors.GetCode(err))
	}
}
