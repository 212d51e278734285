package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/types"
	"github.com/entrhq/autoforge/pkg/ui"
)

// DefaultInterval is the idle poll interval.
const DefaultInterval = 1500 * time.Millisecond

// Dispatcher runs one claimed task.
type Dispatcher interface {
	Dispatch(ctx context.Context, task types.Task) error
}

// HumanActionError is returned by a dispatcher when a task cannot continue
// without someone doing something by hand. The daemon pauses the task.
type HumanActionError struct {
	Instruction string
	Checklist   []string
}

func (e *HumanActionError) Error() string {
	return "human action required: " + e.Instruction
}

// Daemon pulls queued tasks one at a time.
type Daemon struct {
	Store      *Store
	Dispatcher Dispatcher
	Interval   time.Duration
	Logger     *logging.Logger
	Console    *ui.Console
}

func (d *Daemon) logger() *logging.Logger {
	if d.Logger == nil {
		d.Logger = logging.Discard("daemon")
	}
	return d.Logger
}

func (d *Daemon) console() *ui.Console {
	if d.Console == nil {
		d.Console = ui.Discard()
	}
	return d.Console
}

// RunOnce claims and dispatches the first queued task. It reports whether a
// task ran. Dispatch failures are recorded on the task, not returned; only
// store errors are.
func (d *Daemon) RunOnce(ctx context.Context) (bool, error) {
	next, err := d.Store.Next()
	if err != nil || next == nil {
		return false, err
	}

	task, err := d.Store.Claim(next.ID)
	if err != nil {
		return false, err
	}
	d.console().Step("Running task %s (%s)...", task.ID, task.Type)
	d.logger().Infof("claimed task %s (%s)", task.ID, task.Type)

	dispatchErr := d.Dispatcher.Dispatch(ctx, task)

	var human *HumanActionError
	switch {
	case dispatchErr == nil:
		_, err = d.Store.SetStatus(task.ID, types.StatusDone, nil)
		d.console().OK("Task %s done.", task.ID)
	case ctx.Err() != nil:
		// Interrupted mid-task: hand it back to the queue for the next run.
		_, err = d.Store.SetStatus(task.ID, types.StatusQueued, nil)
		d.console().Warn("Task %s interrupted; re-queued.", task.ID)
	case errors.As(dispatchErr, &human):
		_, err = d.Store.RequestHuman(task.ID, human.Instruction, human.Checklist)
		d.console().Warn("Task %s paused: %s", task.ID, human.Instruction)
	default:
		_, err = d.Store.SetStatus(task.ID, types.StatusFailed, map[string]any{"error": dispatchErr.Error()})
		d.console().Err("Task %s failed: %v", task.ID, dispatchErr)
		d.logger().Errorf("task %s failed: %v", task.ID, dispatchErr)
	}
	if err != nil {
		return true, fmt.Errorf("failed to record task %s outcome: %w", task.ID, err)
	}
	return true, nil
}

// Run loops until ctx is cancelled, sleeping Interval whenever the queue is
// empty. Tasks left running by a previous daemon are re-queued first. Store
// errors are logged and retried after Interval; Run only returns, with nil,
// on cancellation.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if ids, err := d.Store.RequeueRunning(); err != nil {
		d.logger().Errorf("failed to recover running tasks: %v", err)
	} else if len(ids) > 0 {
		d.console().Warn("Re-queued %d task(s) left running: %v", len(ids), ids)
		d.logger().Warnf("re-queued orphaned tasks %v", ids)
	}
	d.console().OK("Daemon started. Press CTRL+C to stop.")

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			return nil
		}
		ran, err := d.RunOnce(ctx)
		if err != nil {
			d.logger().Errorf("queue error: %v", err)
			d.console().Err("Queue error: %v", err)
		} else if ran {
			continue
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
