// Package checkpoint provides resume capability for verification of very
// large or still-growing logs. A checkpoint captures the scan position
// together with every checker's serialized derived state, so a later run
// can pick up exactly where the previous pass stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracecheck/tracecheck/pkg/checker"
)

// Phase values for a checkpoint lifecycle.
const (
	PhaseScanning = "scanning"
	PhaseComplete = "complete"
)

// Checkpoint tracks verification progress over one log file.
type Checkpoint struct {
	ID      string `json:"id"`
	LogPath string `json:"log_path"`

	// Scan position.
	Offset int64 `json:"offset"`
	Lines  int64 `json:"lines"`

	// CheckerState maps checker name to its serialized derived state.
	CheckerState map[string]json.RawMessage `json:"checker_state"`

	Phase       string     `json:"phase"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	path string
	mu   sync.Mutex
}

// New creates a checkpoint for a log with a fresh run id.
func New(logPath string) *Checkpoint {
	return &Checkpoint{
		ID:           uuid.NewString(),
		LogPath:      logPath,
		CheckerState: make(map[string]json.RawMessage),
		Phase:        PhaseScanning,
		StartedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// Capture records the scan position and snapshots every checker.
func (c *Checkpoint) Capture(offset, lines int64, checkers []checker.Checker) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Offset = offset
	c.Lines = lines
	c.UpdatedAt = time.Now()

	for _, ch := range checkers {
		state, err := ch.Snapshot()
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", ch.Name(), err)
		}
		c.CheckerState[ch.Name()] = state
	}
	return nil
}

// Apply restores every checker from the checkpoint's state. Checkers
// with no recorded state keep their fresh state.
func (c *Checkpoint) Apply(checkers []checker.Checker) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range checkers {
		state, ok := c.CheckerState[ch.Name()]
		if !ok {
			continue
		}
		if err := ch.Restore(state); err != nil {
			return fmt.Errorf("restore %s: %w", ch.Name(), err)
		}
	}
	return nil
}

// SetPhase updates the phase.
func (c *Checkpoint) SetPhase(phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Phase = phase
	c.UpdatedAt = time.Now()

	if phase == PhaseComplete {
		now := time.Now()
		c.CompletedAt = &now
	}
}

// ShouldResume returns true if this checkpoint can be resumed.
func (c *Checkpoint) ShouldResume() bool {
	return c.Phase != PhaseComplete && c.Offset > 0
}

// Save persists the checkpoint to its file path. Only checkpoints
// created or loaded through a Manager have one.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return fmt.Errorf("checkpoint %s has no file path", c.ID)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic)
	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, c.path)
}

// Backend is a checkpoint storage backend.
type Backend interface {
	// Save persists a checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by run id.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// FindByLog finds an incomplete checkpoint for the given log path.
	FindByLog(ctx context.Context, logPath string) (*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, id string) error

	// Name returns the backend name for logging.
	Name() string
}

// Manager is the file-backed checkpoint backend.
type Manager struct {
	dir string
}

// NewManager creates a file-backed checkpoint manager.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Save implements Backend.
func (m *Manager) Save(ctx context.Context, cp *Checkpoint) error {
	cp.mu.Lock()
	if cp.path == "" {
		cp.path = filepath.Join(m.dir, cp.ID+".checkpoint")
	}
	cp.mu.Unlock()
	return cp.Save()
}

// Load implements Backend.
func (m *Manager) Load(ctx context.Context, id string) (*Checkpoint, error) {
	path := filepath.Join(m.dir, id+".checkpoint")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	cp.path = path
	if cp.CheckerState == nil {
		cp.CheckerState = make(map[string]json.RawMessage)
	}
	return &cp, nil
}

// FindByLog implements Backend.
func (m *Manager) FindByLog(ctx context.Context, logPath string) (*Checkpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".checkpoint" {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}

		if cp.LogPath == logPath && cp.Phase != PhaseComplete {
			cp.path = path
			if cp.CheckerState == nil {
				cp.CheckerState = make(map[string]json.RawMessage)
			}
			return &cp, nil
		}
	}

	return nil, os.ErrNotExist
}

// Delete implements Backend.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return os.Remove(filepath.Join(m.dir, id+".checkpoint"))
}

// Name implements Backend.
func (m *Manager) Name() string { return "file" }

// Cleanup removes checkpoints older than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".checkpoint" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(m.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}
