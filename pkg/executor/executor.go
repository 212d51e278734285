// Package executor runs planner actions against a project root.
//
// Actions run sequentially in the order given. The first failure stops the
// batch; actions that already ran are not undone. Failures never escape as Go
// errors: they are folded into the returned Result's ErrorLog.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/entrhq/autoforge/pkg/config"
	"github.com/entrhq/autoforge/pkg/env"
	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/patch"
	"github.com/entrhq/autoforge/pkg/security/workspace"
	"github.com/entrhq/autoforge/pkg/types"
	"github.com/entrhq/autoforge/pkg/ui"
)

// Executor applies action batches inside one sandbox root.
type Executor struct {
	guard   *workspace.Guard
	cfg     *config.Config
	patcher *patch.Engine
	env     *env.Manager
	logger  *logging.Logger
	console *ui.Console

	stdin          io.Reader
	stdout, stderr io.Writer
	scanProgress   io.Writer
	interrupts     []os.Signal
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithConsole sets where user-facing progress lines go.
func WithConsole(c *ui.Console) Option {
	return func(e *Executor) { e.console = c }
}

// WithOutput redirects the output of exec and check subprocesses and
// detaches their stdin.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		e.stdout = stdout
		e.stderr = stderr
		e.stdin = nil
	}
}

// WithScanProgress sets where scan_repo draws its progress line.
func WithScanProgress(w io.Writer) Option {
	return func(e *Executor) { e.scanProgress = w }
}

// New creates an executor for root. A nil cfg means config.Default().
func New(root string, cfg *config.Config, opts ...Option) (*Executor, error) {
	guard, err := workspace.NewGuard(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open root: %w", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	e := &Executor{
		guard:      guard,
		cfg:        cfg,
		logger:     logging.Discard("executor"),
		console:    ui.Discard(),
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		interrupts: []os.Signal{os.Interrupt},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.patcher = patch.NewEngine(guard, e.logger.With("subsystem", "patch"), e.console)
	e.env = env.NewManager(guard.Root(), e.logger.With("subsystem", "env"))
	return e, nil
}

// Root returns the sandbox root.
func (e *Executor) Root() string {
	return e.guard.Root()
}

// Execute runs actions in order and stops at the first failure.
func (e *Executor) Execute(ctx context.Context, actions []types.Action) types.Result {
	var data []types.ActionOutput

	for i, a := range actions {
		index := i + 1
		if a == nil {
			return e.fail(data, index, "action", fmt.Errorf("action is null"))
		}

		r := &runner{ex: e, ctx: ctx, out: types.ActionOutput{Index: index, Kind: a.Kind()}}
		e.logger.Infof("action %d/%d: %s", index, len(actions), types.Label(a))
		if err := a.Accept(r); err != nil {
			return e.fail(data, index, types.Label(a), err)
		}
		if r.produced {
			data = append(data, r.out)
		}
	}

	return types.Result{OK: true, Data: data}
}

func (e *Executor) fail(data []types.ActionOutput, index int, label string, err error) types.Result {
	e.console.Err("Action failed: %v", err)
	e.logger.Errorf("action %d (%s) failed: %v", index, label, err)
	return types.Result{
		OK:       false,
		ErrorLog: fmt.Sprintf("action %d %s failed: %v", index, label, err),
		Data:     data,
	}
}

// ExecuteActions builds a one-shot executor for root and runs actions.
func ExecuteActions(ctx context.Context, root string, cfg *config.Config, actions []types.Action, opts ...Option) types.Result {
	e, err := New(root, cfg, opts...)
	if err != nil {
		return types.Result{OK: false, ErrorLog: err.Error()}
	}
	return e.Execute(ctx, actions)
}
