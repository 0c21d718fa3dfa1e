// Package scan reads a captured log file line by line, preserving the
// file order that stands in for the executor's true event order.
package scan

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/tracecheck/tracecheck/internal/model"
	"github.com/tracecheck/tracecheck/pkg/errors"
)

// defaultBufferSize is the read buffer size in bytes.
const defaultBufferSize = 64 * 1024

// Scanner performs a single bounded pass over a finite log file.
type Scanner struct {
	path   string
	file   *os.File
	gz     *gzip.Reader
	reader *bufio.Reader

	offset atomic.Int64
	lineNo atomic.Int64
}

// Open opens a log file for scanning. Files ending in .gz are
// decompressed transparently.
func Open(path string) (*Scanner, error) {
	return OpenAt(path, 0, 0)
}

// OpenAt opens a log file and seeks to a previously recorded byte offset,
// continuing line numbering from lineNo. Resume is not supported for
// compressed files.
func OpenAt(path string, offset int64, lineNo int64) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(path)
		}
		return nil, errors.Wrap(err, errors.CodeScanFailed, "failed to open log").WithContext("path", path)
	}

	s := &Scanner{path: path, file: f}

	if strings.HasSuffix(path, ".gz") {
		if offset > 0 {
			f.Close()
			return nil, errors.New(errors.CodeInvalidInput, "cannot resume a compressed log").
				WithContext("path", path)
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to open gzip stream").
				WithContext("path", path)
		}
		s.gz = gz
		s.reader = bufio.NewReaderSize(gz, defaultBufferSize)
		return s, nil
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.CodeScanFailed, "failed to seek to resume offset").
				WithContext("path", path).
				WithContext("offset", offset)
		}
		s.offset.Store(offset)
		s.lineNo.Store(lineNo)
	}

	s.reader = bufio.NewReaderSize(f, defaultBufferSize)
	return s, nil
}

// Run reads lines in file order and sends them to out. It respects
// context cancellation. The caller owns out and closes it after Run
// returns.
func (s *Scanner) Run(ctx context.Context, out chan<- model.Line) error {
	for {
		select {
		case <-ctx.Done():
			return errors.ContextCanceled("scan")
		default:
		}

		raw, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return errors.Wrap(err, errors.CodeScanFailed, "read failed").
				WithContext("path", s.path).
				WithContext("line", s.lineNo.Load()+1)
		}
		if len(raw) == 0 && err == io.EOF {
			return nil
		}

		off := s.offset.Add(int64(len(raw)))
		n := s.lineNo.Add(1)

		line := model.Line{
			Text:   string(bytes.TrimRight(raw, "\r\n")),
			Number: int(n),
			File:   s.path,
			Offset: off,
		}

		select {
		case out <- line:
		case <-ctx.Done():
			return errors.ContextCanceled("scan")
		}

		if err == io.EOF {
			return nil
		}
	}
}

// Path returns the path the scanner was opened on.
func (s *Scanner) Path() string { return s.path }

// Offset returns the number of raw bytes consumed so far. For compressed
// files this is the uncompressed byte count.
func (s *Scanner) Offset() int64 { return s.offset.Load() }

// Lines returns the number of lines emitted so far.
func (s *Scanner) Lines() int64 { return s.lineNo.Load() }

// Size returns the on-disk size of the log file.
func (s *Scanner) Size() int64 {
	info, err := s.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Close releases the underlying file.
func (s *Scanner) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.file.Close()
}
