package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/autoforge/pkg/config"
	"github.com/entrhq/autoforge/pkg/env"
	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/phase"
	"github.com/entrhq/autoforge/pkg/queue"
	"github.com/entrhq/autoforge/pkg/types"
	"github.com/entrhq/autoforge/pkg/ui"
)

var errNoGoal = errors.New("task has no goal, plan or actions in meta")

// taskDispatcher runs queued tasks for the daemon.
//
// Meta keys:
//
//	goal     string  generate/edit: goal for the phase runner
//	args     string  legacy spelling of goal
//	plan     string  generate/edit: plan text executed once, no planner
//	actions  array   generate/edit: action list executed once, no planner
//	paths    array   check: directories to check
type taskDispatcher struct {
	root       string
	cfg        *config.Config
	executor   phase.Executor
	newPlanner func() (phase.Planner, error)
	logger     *logging.Logger
	console    *ui.Console
}

var _ queue.Dispatcher = (*taskDispatcher)(nil)

func (d *taskDispatcher) Dispatch(ctx context.Context, task types.Task) error {
	switch task.Type {
	case types.TaskCheck:
		return d.execute(ctx, []types.Action{&types.CheckAction{Paths: metaStrings(task.Meta, "paths")}})
	case types.TaskGenerate, types.TaskEdit:
		return d.build(ctx, task)
	case types.TaskDeploy:
		return d.deploy(task)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

func (d *taskDispatcher) execute(ctx context.Context, actions []types.Action) error {
	res := d.executor.Execute(ctx, actions)
	if !res.OK {
		return errors.New(res.ErrorLog)
	}
	return nil
}

func (d *taskDispatcher) build(ctx context.Context, task types.Task) error {
	actions, err := taskActions(task)
	if err != nil {
		return err
	}
	if actions != nil {
		if err := d.execute(ctx, actions); err != nil {
			return err
		}
		return d.commit(ctx, nil, task.MetaString("goal"))
	}

	goal := task.MetaString("goal")
	if goal == "" {
		goal = task.MetaString("args")
	}
	if strings.TrimSpace(goal) == "" {
		return errNoGoal
	}

	planner, err := d.newPlanner()
	if err != nil {
		return err
	}
	runner := phase.NewRunner(d.root, planner, d.executor, d.logger.With("subsystem", "phase"), d.console)
	out, err := runner.Run(ctx, goal, phase.Options{
		MaxRetries: d.cfg.MaxRetries(),
		CheckPaths: d.cfg.Planner.CheckPaths,
		SpecFile:   d.cfg.Planner.SpecFile,
	})
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("goal not reached after %d attempt(s): %s", out.Attempts, out.LastError)
	}
	return d.commit(ctx, planner, goal)
}

func (d *taskDispatcher) commit(ctx context.Context, planner phase.Planner, goal string) error {
	if !d.cfg.Git.AutoCommit {
		return nil
	}
	return commitWork(ctx, d.root, planner, goal, d.console)
}

// taskActions returns the literal plan stored on the task, or nil when the
// task only carries a goal.
func taskActions(task types.Task) ([]types.Action, error) {
	if raw := task.MetaString("plan"); raw != "" {
		plan, err := phase.ParsePlan(raw)
		if err != nil {
			return nil, err
		}
		return plan.Actions, nil
	}

	v, ok := task.Meta["actions"]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid meta.actions: %w", err)
	}
	var actions types.Actions
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("invalid meta.actions: %w", err)
	}
	return actions, nil
}

// deploy pauses until every pending provider sync has been done by hand.
func (d *taskDispatcher) deploy(task types.Task) error {
	pending, err := env.LoadPending(d.root)
	if err != nil {
		return err
	}
	if len(pending.Variables) == 0 {
		d.console.OK("No pending environment syncs")
		return nil
	}

	checklist := make([]string, 0, len(pending.Variables))
	for _, v := range pending.Variables {
		item := v.Name
		if len(v.RequiredProviders) > 0 {
			names := make([]string, len(v.RequiredProviders))
			for i, p := range v.RequiredProviders {
				names[i] = string(p)
			}
			item += " -> " + strings.Join(names, ", ")
		}
		checklist = append(checklist, item)
	}
	return &queue.HumanActionError{
		Instruction: fmt.Sprintf("Sync %d environment variable(s) to their providers, run `af env clear`, then `af queue resume %s`",
			len(pending.Variables), task.ID),
		Checklist: checklist,
	}
}

func metaStrings(meta map[string]any, key string) []string {
	switch v := meta[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	return nil
}
