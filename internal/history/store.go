// Package history keeps a bounded, ordered record of executed window
// actions with an undo/redo cursor and debounced persistence to disk.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/sashd/internal/wm"
)

// Sentinel errors reported by Undo and Redo.
var (
	ErrDisabled = errors.New("history is disabled")
	ErrEmpty    = errors.New("no history entry available")
)

// FocusTarget is the previously focused application, recorded so a focus
// action can be reversed.
type FocusTarget struct {
	App string `json:"app"`
	PID int32  `json:"pid"`
}

// Record is one executed action with the state needed to reverse it
// (Prev / PrevFocus) and to replay it (Next).
type Record struct {
	ID        string       `json:"id"`
	Ts        time.Time    `json:"ts"`
	Kind      string       `json:"kind"`
	App       string       `json:"app"`
	PID       int32        `json:"pid"`
	Prev      *wm.Geometry `json:"prev,omitempty"`
	Next      *wm.Geometry `json:"next,omitempty"`
	PrevFocus *FocusTarget `json:"prev_focus,omitempty"`
}

// persisted is the on-disk shape: records oldest first, plus the cursor.
type persisted struct {
	Records []Record `json:"records"`
	Cursor  int      `json:"cursor"`
}

// Options configures a Store.
type Options struct {
	Path       string
	Limit      int
	FlushDelay time.Duration
	Enabled    bool
	Logger     *zap.Logger
}

// Store holds the in-memory ring of records. records[0] is the oldest;
// cursor counts the undoable records, so cursor==len(records) means
// nothing has been undone. Mutating operations are short critical
// sections under mu; disk I/O happens on the debounce path over a
// snapshot, never under mu.
type Store struct {
	mu      sync.Mutex
	records []Record
	cursor  int
	dirty   bool

	limit      int
	enabled    bool
	path       string
	flushDelay time.Duration

	timerMu sync.Mutex
	timer   *time.Timer

	flushMu sync.Mutex // serializes disk writes
	onFlush func()     // test hook, called after a successful write

	logger *zap.Logger
}

// New creates a store, loading any persisted history when enabled.
func New(opts Options) (*Store, error) {
	s := &Store{
		limit:      opts.Limit,
		enabled:    opts.Enabled,
		path:       opts.Path,
		flushDelay: opts.FlushDelay,
		logger:     opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if !s.enabled {
		return s, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt file should not keep the daemon down.
		s.logger.Warn("discarding unreadable history file", zap.Error(err))
		return s, nil
	}

	s.records = p.Records
	s.cursor = p.Cursor
	if over := len(s.records) - s.limit; over > 0 {
		s.records = s.records[over:]
		s.cursor -= over
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor > len(s.records) {
		s.cursor = len(s.records)
	}
	return s, nil
}

// Enabled reports whether history tracking is on.
func (s *Store) Enabled() bool { return s.enabled }

// Append records an executed action. A prior undo truncates the redo path
// first; overflow evicts the oldest record. No-op when disabled.
func (s *Store) Append(rec Record) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	s.records = append(s.records[:s.cursor], rec)
	if len(s.records) > s.limit {
		s.records = s.records[1:]
	}
	s.cursor = len(s.records)
	s.dirty = true
	s.mu.Unlock()

	s.scheduleFlush()
}

// Undo steps the cursor back and returns the record to reverse.
func (s *Store) Undo() (*Record, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}

	s.mu.Lock()
	if s.cursor == 0 {
		s.mu.Unlock()
		return nil, ErrEmpty
	}
	s.cursor--
	rec := s.records[s.cursor]
	s.dirty = true
	s.mu.Unlock()

	s.scheduleFlush()
	return &rec, nil
}

// Redo returns the next record to replay and steps the cursor forward.
func (s *Store) Redo() (*Record, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}

	s.mu.Lock()
	if s.cursor >= len(s.records) {
		s.mu.Unlock()
		return nil, ErrEmpty
	}
	rec := s.records[s.cursor]
	s.cursor++
	s.dirty = true
	s.mu.Unlock()

	s.scheduleFlush()
	return &rec, nil
}

// Clear discards all records and the cursor.
func (s *Store) Clear() {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	s.records = nil
	s.cursor = 0
	s.dirty = true
	s.mu.Unlock()

	s.scheduleFlush()
}

// List returns a copy of the records (oldest first) and the cursor.
func (s *Store) List() ([]Record, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, s.cursor
}

// Depths returns the number of undoable and redoable records.
func (s *Store) Depths() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, len(s.records) - s.cursor
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// scheduleFlush re-arms the single debounce timer so exactly one flush
// runs per quiet period, flushDelay after the last mutation.
func (s *Store) scheduleFlush() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timer == nil {
		s.timer = time.AfterFunc(s.flushDelay, func() {
			if err := s.Flush(); err != nil {
				s.logger.Error("history flush failed", zap.Error(err))
			}
		})
		return
	}
	s.timer.Reset(s.flushDelay)
}

// Flush writes the history file if dirty. The record mutex is held only
// long enough to snapshot; the write itself runs outside it. The write is
// atomic: temp file in the same directory, then rename.
func (s *Store) Flush() error {
	if !s.enabled {
		return nil
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := persisted{
		Records: make([]Record, len(s.records)),
		Cursor:  s.cursor,
	}
	copy(snapshot.Records, s.records)
	s.dirty = false
	s.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		s.markDirty()
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		s.markDirty()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.markDirty()
		return fmt.Errorf("failed to rename history: %w", err)
	}

	if s.onFlush != nil {
		s.onFlush()
	}
	return nil
}

func (s *Store) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Close stops the debounce timer and forces a synchronous flush when
// dirty. Called on clean shutdown; an unclean termination loses at most
// one debounce window.
func (s *Store) Close() error {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerMu.Unlock()

	return s.Flush()
}
