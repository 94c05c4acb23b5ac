// Package store implements the task/assignment persistence described in
// §6: one JSON file per task under a per-user state directory, guarded by
// an flock-based file lock with atomic temp-file-plus-rename writes.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Status is the task lifecycle state, per §6's bit-exact schema.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
)

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the §6 task-assignment record, field-for-field.
type Task struct {
	TaskID             string   `json:"task_id"`
	AgentID            string   `json:"agent_id"`
	Status             Status   `json:"status"`
	Priority           string   `json:"priority"`
	EstimatedHours     *int     `json:"estimated_hours"`
	ActualHours        *int     `json:"actual_hours"`
	ProgressPercentage *int     `json:"progress_percentage"`
	CompletionNotes    *string  `json:"completion_notes"`
	Blockers           []string `json:"blockers"`
	Tags               []string `json:"tags"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
	PreviousStatus     *string  `json:"previous_status"`
}

// NotFoundError is returned when a task_id has no corresponding file.
type NotFoundError struct{ TaskID string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("store: task %q not found", e.TaskID) }

// CorruptError is returned when a task file exists but fails to parse.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string { return fmt.Sprintf("store: corrupt file %s: %v", e.Path, e.Err) }
func (e *CorruptError) Unwrap() error { return e.Err }

// lockedDir implements the shared lock-and-atomic-write discipline both
// Store and AssignmentStore need: one JSON file per key under dir, guarded
// by a sibling ".<key>.lock" flock, written via temp-file-plus-rename.
type lockedDir struct {
	dir string
}

func (d lockedDir) path(id string) string     { return filepath.Join(d.dir, id+".json") }
func (d lockedDir) lockPath(id string) string { return filepath.Join(d.dir, "."+id+".lock") }

// withLock runs fn while holding an exclusive lock on id's lock file,
// retrying the whole operation up to 3 times with a 100ms initial
// exponential backoff on I/O failure, per §7's one justified retry class.
// I/O failure means the lock cannot be taken, or fn fails with a
// filesystem error (*os.PathError or *os.LinkError); any other error from
// fn is returned at once.
func (d lockedDir) withLock(id string, fn func() error) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("store: creating state dir: %w", err)
	}
	fl := flock.New(d.lockPath(id))
	defer fl.Unlock()

	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		locked, err := fl.TryLock()
		if err != nil {
			lastErr = err
			continue
		}
		if !locked {
			lastErr = fmt.Errorf("store: could not acquire lock for %q", id)
			continue
		}
		err = fn()
		unlockErr := fl.Unlock()
		if err != nil {
			var pathErr *os.PathError
			var linkErr *os.LinkError
			if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
				lastErr = err
				continue
			}
			return err
		}
		return unlockErr
	}
	return fmt.Errorf("store: %q failed after 3 attempts: %w", id, lastErr)
}

// atomicWrite writes data to path via a temp file plus rename, so a reader
// never observes a half-written file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Store persists Tasks as one JSON file per task under dir/tasks. Every
// read-modify-write cycle holds an exclusive flock scoped to that single
// file, so concurrent CLI invocations never interleave a torn write.
type Store struct {
	lockedDir
}

// New returns a Store rooted at stateDir (e.g. "~/.tmux-orchestrator").
// The tasks subdirectory is created on first use, not at construction.
func New(stateDir string) *Store {
	return &Store{lockedDir{dir: filepath.Join(stateDir, "tasks")}}
}

// Create writes a new task file. It fails if one already exists for the
// same task_id.
func (s *Store) Create(task Task) error {
	if !validStatus(task.Status) {
		return fmt.Errorf("store: invalid status %q", task.Status)
	}
	return s.withLock(task.TaskID, func() error {
		path := s.path(task.TaskID)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("store: task %q already exists", task.TaskID)
		}
		data, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return err
		}
		return atomicWrite(path, data)
	})
}

// Get reads a single task by id.
func (s *Store) Get(taskID string) (Task, error) {
	path := s.path(taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Task{}, &NotFoundError{TaskID: taskID}
		}
		return Task{}, fmt.Errorf("store: reading %s: %w", path, err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, &CorruptError{Path: path, Err: err}
	}
	return task, nil
}

// List returns every task file under the store directory. Corrupt files
// are skipped, not fatal, matching C4's "never abort on one bad record"
// stance applied to storage reads.
func (s *Store) List() ([]Task, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: listing %s: %w", s.dir, err)
	}
	var tasks []Task
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// UpdateStatus transitions a task's status, recording the previous value
// and bumping updated_at. now is injected so callers control the
// timestamp deterministically in tests.
func (s *Store) UpdateStatus(taskID string, next Status, now time.Time) error {
	if !validStatus(next) {
		return fmt.Errorf("store: invalid status %q", next)
	}
	return s.withLock(taskID, func() error {
		task, err := s.Get(taskID)
		if err != nil {
			return err
		}
		prev := string(task.Status)
		task.PreviousStatus = &prev
		task.Status = next
		task.UpdatedAt = now.UTC().Format(time.RFC3339)
		data, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return err
		}
		return atomicWrite(s.path(taskID), data)
	})
}

// Delete removes a task file. A missing file is not an error.
func (s *Store) Delete(taskID string) error {
	return s.withLock(taskID, func() error {
		err := os.Remove(s.path(taskID))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}
