// Package watch follows one growing log file and reports appended
// regions and truncation, so the verifier can re-check incrementally
// as the instrumented executor writes.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change classifies what happened to the followed file.
type Change int

const (
	// NoChange: the file size is unchanged.
	NoChange Change = iota

	// Appended: new bytes past the previously seen size.
	Appended

	// Truncated: the file shrank, which means rotation or rewrite;
	// everything derived from the old content is invalid.
	Truncated
)

// Follow watches a single log file. Appends and truncation are
// delivered through the callbacks; rapid write bursts are debounced
// into one notification.
type Follow struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu         sync.Mutex
	lastSize   int64
	processing bool

	// OnAppend is called once per settled burst of appended bytes.
	OnAppend func() error

	// OnTruncate is called before OnAppend when the file shrank.
	OnTruncate func() error

	// OnError receives watch and callback errors.
	OnError func(error)
}

// NewFollow starts following the log at path. The file must exist.
func NewFollow(path string) (*Follow, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watching the directory survives the rename+recreate rotation
	// pattern that watching the file itself does not.
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Follow{
		path:     absPath,
		watcher:  fsWatcher,
		debounce: 500 * time.Millisecond,
		lastSize: stat.Size(),
	}, nil
}

// SetDebounce overrides how long a write burst must settle before the
// callbacks fire.
func (f *Follow) SetDebounce(d time.Duration) {
	f.debounce = d
}

// Path returns the absolute path being followed.
func (f *Follow) Path() string { return f.path }

// classify compares the previously seen size against the current one.
func classify(prev, cur int64) Change {
	switch {
	case cur < prev:
		return Truncated
	case cur > prev:
		return Appended
	default:
		return NoChange
	}
}

// Run delivers changes until the context is cancelled.
func (f *Follow) Run(ctx context.Context) error {
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)

	for {
		select {
		case <-ctx.Done():
			f.watcher.Close()
			return ctx.Err()

		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != f.path {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(f.debounce, f.handle)
			timerMu.Unlock()

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.reportError(err)
		}
	}
}

// handle stats the file once a burst has settled and fires callbacks.
func (f *Follow) handle() {
	f.mu.Lock()
	if f.processing {
		f.mu.Unlock()
		return
	}
	f.processing = true
	prev := f.lastSize
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.processing = false
		f.mu.Unlock()
	}()

	stat, err := os.Stat(f.path)
	if err != nil {
		f.reportError(err)
		return
	}

	change := classify(prev, stat.Size())
	if change == NoChange {
		return
	}

	f.mu.Lock()
	f.lastSize = stat.Size()
	f.mu.Unlock()

	if change == Truncated && f.OnTruncate != nil {
		if err := f.OnTruncate(); err != nil {
			f.reportError(err)
			return
		}
	}

	if f.OnAppend != nil {
		if err := f.OnAppend(); err != nil {
			f.reportError(err)
		}
	}
}

func (f *Follow) reportError(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// Close stops following the file.
func (f *Follow) Close() error {
	return f.watcher.Close()
}
