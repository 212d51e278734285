// Package queue persists tasks in <root>/.af/state/state.json and runs them
// one at a time from a polling daemon.
//
// The state file has a single writer: every mutation rewrites it atomically,
// but nothing stops two processes from interleaving load/save. Run one daemon
// per working tree.
package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/autoforge/pkg/storage"
	"github.com/entrhq/autoforge/pkg/types"
)

// StateFile is the task store location relative to the root.
const StateFile = ".af/state/state.json"

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTaskRunning       = errors.New("another task is already running")
)

// Auth is carried through the state file untouched.
type Auth struct {
	Initialized bool   `json:"initialized"`
	StoredAt    string `json:"storedAt"`
}

// State is the on-disk document.
type State struct {
	Tasks []types.Task `json:"tasks"`
	Auth  Auth         `json:"auth"`
}

// Store reads and writes the task list for one root.
type Store struct {
	path  string
	now   func() time.Time
	newID func() string
}

// NewStore returns a store for root. Nothing is read until the first call.
func NewStore(root string) *Store {
	return &Store{
		path:  filepath.Join(root, StateFile),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (*State, error) {
	st := &State{}
	if err := storage.ReadJSON(s.path, st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{Tasks: []types.Task{}}, nil
		}
		return nil, fmt.Errorf("failed to load task state: %w", err)
	}
	if st.Tasks == nil {
		st.Tasks = []types.Task{}
	}
	return st, nil
}

func (s *Store) save(st *State) error {
	if err := storage.WriteJSON(s.path, st); err != nil {
		return fmt.Errorf("failed to save task state: %w", err)
	}
	return nil
}

func (st *State) find(id string) (int, error) {
	for i := range st.Tasks {
		if st.Tasks[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// Enqueue appends a queued task and returns its id.
func (s *Store) Enqueue(typ types.TaskType, meta map[string]any) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("invalid task type: %s (must be 'generate', 'edit', 'check', or 'deploy')", typ)
	}
	st, err := s.load()
	if err != nil {
		return "", err
	}

	if meta == nil {
		meta = map[string]any{}
	}
	now := s.now()
	task := types.Task{
		ID:        s.newID(),
		Type:      typ,
		Status:    types.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      meta,
	}
	st.Tasks = append(st.Tasks, task)
	if err := s.save(st); err != nil {
		return "", err
	}
	return task.ID, nil
}

// List returns every task in insertion order.
func (s *Store) List() ([]types.Task, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.Tasks, nil
}

// Get returns one task.
func (s *Store) Get(id string) (types.Task, error) {
	st, err := s.load()
	if err != nil {
		return types.Task{}, err
	}
	i, err := st.find(id)
	if err != nil {
		return types.Task{}, err
	}
	return st.Tasks[i], nil
}

// Next returns the first queued task, or nil when none is waiting.
func (s *Store) Next() (*types.Task, error) {
	tasks, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].Status == types.StatusQueued {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

// SetStatus moves a task to status, merging patch into its meta. The move
// must be allowed by the status table, and at most one task may be running.
func (s *Store) SetStatus(id string, status types.TaskStatus, patch map[string]any) (types.Task, error) {
	st, err := s.load()
	if err != nil {
		return types.Task{}, err
	}
	i, err := st.find(id)
	if err != nil {
		return types.Task{}, err
	}

	task := &st.Tasks[i]
	if !task.Status.CanTransition(status) {
		return types.Task{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, status)
	}
	if status == types.StatusRunning {
		for j := range st.Tasks {
			if j != i && st.Tasks[j].Status == types.StatusRunning {
				return types.Task{}, fmt.Errorf("%w: %s", ErrTaskRunning, st.Tasks[j].ID)
			}
		}
	}

	task.Status = status
	task.UpdatedAt = s.now()
	if len(patch) > 0 {
		if task.Meta == nil {
			task.Meta = map[string]any{}
		}
		for k, v := range patch {
			task.Meta[k] = v
		}
	}

	if err := s.save(st); err != nil {
		return types.Task{}, err
	}
	return *task, nil
}

// RequeueRunning moves every running task back to queued and returns their
// ids. A daemon calls it at startup: with one daemon per root, a task still
// running then was orphaned by a daemon that died mid-task.
func (s *Store) RequeueRunning() ([]string, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	var ids []string
	for i := range st.Tasks {
		if st.Tasks[i].Status != types.StatusRunning {
			continue
		}
		st.Tasks[i].Status = types.StatusQueued
		st.Tasks[i].UpdatedAt = s.now()
		ids = append(ids, st.Tasks[i].ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, s.save(st)
}

// Claim marks a queued task running.
func (s *Store) Claim(id string) (types.Task, error) {
	return s.SetStatus(id, types.StatusRunning, nil)
}

// RequestHuman pauses a running task until someone resumes it.
func (s *Store) RequestHuman(id, instruction string, checklist []string) (types.Task, error) {
	if checklist == nil {
		checklist = []string{}
	}
	return s.SetStatus(id, types.StatusPaused, map[string]any{
		"instruction": instruction,
		"checklist":   checklist,
	})
}

// Resume re-queues a paused or failed task.
func (s *Store) Resume(id string) (types.Task, error) {
	task, err := s.Get(id)
	if err != nil {
		return types.Task{}, err
	}
	if task.Status != types.StatusPaused && task.Status != types.StatusFailed {
		return types.Task{}, fmt.Errorf("%w: cannot resume a %s task", ErrInvalidTransition, task.Status)
	}
	return s.SetStatus(id, types.StatusQueued, nil)
}

// Remove deletes a task that is not running.
func (s *Store) Remove(id string) error {
	st, err := s.load()
	if err != nil {
		return err
	}
	i, err := st.find(id)
	if err != nil {
		return err
	}
	if st.Tasks[i].Status == types.StatusRunning {
		return fmt.Errorf("%w: %s", ErrTaskRunning, id)
	}
	st.Tasks = append(st.Tasks[:i], st.Tasks[i+1:]...)
	return s.save(st)
}

// Prune removes every done task and reports how many went.
func (s *Store) Prune() (int, error) {
	st, err := s.load()
	if err != nil {
		return 0, err
	}
	kept := st.Tasks[:0]
	for _, t := range st.Tasks {
		if t.Status != types.StatusDone {
			kept = append(kept, t)
		}
	}
	removed := len(st.Tasks) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	st.Tasks = kept
	return removed, s.save(st)
}
