package types

import "time"

// TaskType selects what the daemon does with a task.
type TaskType string

const (
	TaskGenerate TaskType = "generate" // TaskGenerate runs a phased build toward meta.goal.
	TaskEdit     TaskType = "edit"     // TaskEdit is a generate scoped to an existing tree.
	TaskCheck    TaskType = "check"    // TaskCheck runs the build/typecheck action.
	TaskDeploy   TaskType = "deploy"   // TaskDeploy reports pending provider syncs.
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskGenerate, TaskEdit, TaskCheck, TaskDeploy:
		return true
	}
	return false
}

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	StatusQueued  TaskStatus = "queued"
	StatusRunning TaskStatus = "running"
	StatusPaused  TaskStatus = "paused-awaiting-human"
	StatusDone    TaskStatus = "done"
	StatusFailed  TaskStatus = "failed"
)

var transitions = map[TaskStatus][]TaskStatus{
	StatusQueued:  {StatusRunning},
	StatusRunning: {StatusDone, StatusFailed, StatusPaused, StatusQueued},
	StatusPaused:  {StatusQueued},
	StatusFailed:  {StatusQueued},
}

// CanTransition reports whether a task may move from s to next.
// done is terminal; failed may only be re-queued as an explicit retry.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPaused, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Task is a durably queued unit of work.
type Task struct {
	ID        string         `json:"id"`
	Type      TaskType       `json:"type"`
	Status    TaskStatus     `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Meta      map[string]any `json:"meta"`
}

// MetaString returns meta[key] when it is a string.
func (t *Task) MetaString(key string) string {
	if t.Meta == nil {
		return ""
	}
	s, _ := t.Meta[key].(string)
	return s
}
