package scan

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tracecheck/tracecheck/internal/model"
	"github.com/tracecheck/tracecheck/pkg/errors"
)

func collect(t *testing.T, s *Scanner) []model.Line {
	t.Helper()

	out := make(chan model.Line, 64)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), out)
		close(out)
	}()

	var lines []model.Line
	for line := range out {
		lines = append(lines, line)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return lines
}

func TestScanner_ReadsLinesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	if err := os.WriteFile(path, []byte("alpha\nbeta\r\ngamma\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	lines := collect(t, s)
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}

	want := []string{"alpha", "beta", "gamma"}
	for i, line := range lines {
		if line.Text != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], line.Text)
		}
		if line.Number != i+1 {
			t.Errorf("Line %d: expected number %d, got %d", i, i+1, line.Number)
		}
		if line.File != path {
			t.Errorf("Line %d: expected file %q, got %q", i, path, line.File)
		}
	}

	// Per-line end offsets are cumulative raw bytes, CR/LF included.
	offsets := []int64{6, 12, 18}
	for i, line := range lines {
		if line.Offset != offsets[i] {
			t.Errorf("Line %d: expected offset %d, got %d", i, offsets[i], line.Offset)
		}
	}

	if s.Lines() != 3 {
		t.Errorf("Expected 3 lines counted, got %d", s.Lines())
	}
	if s.Offset() != int64(len("alpha\nbeta\r\ngamma\n")) {
		t.Errorf("Expected offset %d, got %d", len("alpha\nbeta\r\ngamma\n"), s.Offset())
	}
}

func TestScanner_LastLineWithoutNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	if err := os.WriteFile(path, []byte("first\nlast"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	lines := collect(t, s)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[1].Text != "last" {
		t.Errorf("Expected %q, got %q", "last", lines[1].Text)
	}
}

func TestScanner_ResumeFromOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	content := "one\ntwo\nthree\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// First pass reads everything and records position.
	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	collect(t, first)
	offset, lineNo := first.Offset(), first.Lines()
	first.Close()

	// Append and resume from the recorded position.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("four\n")
	f.Close()

	resumed, err := OpenAt(path, offset, lineNo)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer resumed.Close()

	lines := collect(t, resumed)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 new line, got %d", len(lines))
	}
	if lines[0].Text != "four" {
		t.Errorf("Expected %q, got %q", "four", lines[0].Text)
	}
	if lines[0].Number != 4 {
		t.Errorf("Expected line number 4, got %d", lines[0].Number)
	}
	if resumed.Lines() != 4 {
		t.Errorf("Expected cumulative line count 4, got %d", resumed.Lines())
	}
}

func TestScanner_Gzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	gz.Write([]byte("compressed one\ncompressed two\n"))
	gz.Close()
	f.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	lines := collect(t, s)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0].Text != "compressed one" {
		t.Errorf("Expected %q, got %q", "compressed one", lines[0].Text)
	}
}

func TestScanner_GzipResumeRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	gz.Write([]byte("data\n"))
	gz.Close()
	f.Close()

	_, err = OpenAt(path, 10, 1)
	if err == nil {
		t.Fatal("Expected resume on compressed file to fail")
	}
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Errorf("Expected CodeInvalidInput, got %v", errors.GetCode(err))
	}
}

func TestScanner_MissingFile(t *testing.T) {
	_, err := Open("/nonexistent/run.log")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.IsCode(err, errors.CodeFileNotFound) {
		t.Errorf("Expected CodeFileNotFound, got %v", errors.GetCode(err))
	}
}

func TestScanner_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan model.Line, 64)
	if err := s.Run(ctx, out); !errors.IsCode(err, errors.CodeContextCanceled) {
		t.Errorf("Expected CodeContextCanceled, got %v", err)
	}
}
