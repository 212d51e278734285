// Package phase drives the plan, execute, diagnose loop toward a goal.
//
// Each round executes the current plan with a trailing check. A failed round
// sends the error log back to the planner for the smallest fix; a reply that
// is not a plan earns one "tiny patch" re-prompt before the run gives up.
package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/types"
	"github.com/entrhq/autoforge/pkg/ui"
)

const (
	// DefaultMaxRetries bounds execution rounds when Options leaves it unset.
	DefaultMaxRetries = 5
	// DefaultSpecFile is read from the root and shown to the planner.
	DefaultSpecFile = "product.spec.yml"

	invalidTwice = "planner returned invalid JSON twice"
)

// ErrInvalidInitialPlan is returned when the first reply holds no plan.
var ErrInvalidInitialPlan = errors.New("planner did not return a valid JSON plan for the initial step")

// Executor runs one batch of actions.
type Executor interface {
	Execute(ctx context.Context, actions []types.Action) types.Result
}

// Options tunes one run.
type Options struct {
	MaxRetries int      // execution rounds; values below 1 mean 1, zero means DefaultMaxRetries
	CheckPaths []string // paths for the trailing check action
	SpecFile   string   // relative to the root; empty means DefaultSpecFile
}

// Outcome is the result of a run.
type Outcome struct {
	OK        bool   `json:"ok"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}

// Runner ties a planner to an executor for one root.
type Runner struct {
	root     string
	planner  Planner
	executor Executor
	logger   *logging.Logger
	console  *ui.Console
}

// NewRunner creates a runner. Nil logger and console discard.
func NewRunner(root string, planner Planner, executor Executor, logger *logging.Logger, console *ui.Console) *Runner {
	if logger == nil {
		logger = logging.Discard("phase")
	}
	if console == nil {
		console = ui.Discard()
	}
	return &Runner{root: root, planner: planner, executor: executor, logger: logger, console: console}
}

// Run plans toward goal and iterates until checks pass, the retry budget is
// spent or the planner stops producing plans. The error is non-nil only when
// the planner could not be reached, the first reply held no plan, or ctx was
// cancelled.
func (r *Runner) Run(ctx context.Context, goal string, opts Options) (Outcome, error) {
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	spec := r.readSpec(opts.SpecFile)
	r.console.Step("Planning: %s", goal)
	plan, err := r.ask(ctx, firstPrompt(goal, spec, opts.CheckPaths))
	if err != nil {
		return Outcome{}, err
	}
	if plan == nil {
		return Outcome{}, ErrInvalidInitialPlan
	}

	var out Outcome
	for out.Attempts < maxRetries {
		out.Attempts++
		r.console.Step("Attempt %d/%d: %d action(s)", out.Attempts, maxRetries, len(plan.Actions))
		if plan.Notes != "" {
			r.console.Info("%s", plan.Notes)
		}

		res := r.executor.Execute(ctx, withTrailingCheck(plan.Actions, opts.CheckPaths))
		if res.OK {
			out.OK = true
			out.LastError = ""
			r.console.OK("Checks passed after %d attempt(s)", out.Attempts)
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			out.LastError = res.ErrorLog
			return out, err
		}

		out.LastError = res.ErrorLog
		if out.LastError == "" {
			out.LastError = "unknown error"
		}
		r.logger.Warnf("attempt %d failed: %s", out.Attempts, out.LastError)
		if out.Attempts >= maxRetries {
			break
		}

		r.console.Warn("Attempt %d failed; asking the planner for a fix", out.Attempts)
		plan, err = r.ask(ctx, fixPrompt(out.LastError))
		if err != nil {
			return out, err
		}
		if plan == nil {
			r.logger.Warnf("fix reply held no plan; asking for a tiny patch")
			plan, err = r.ask(ctx, tinyFixPrompt(out.LastError))
			if err != nil {
				return out, err
			}
			if plan == nil {
				out.LastError = invalidTwice
				return out, nil
			}
		}
	}

	r.console.Err("Giving up after %d attempt(s)", out.Attempts)
	return out, nil
}

// ask sends one prompt and returns the parsed plan, or nil when the reply has
// none. Only transport failures are errors.
func (r *Runner) ask(ctx context.Context, prompt string) (*types.Plan, error) {
	reply, err := r.planner.Plan(ctx, []types.Message{
		types.NewSystemMessage(SystemPolicy),
		types.NewUserMessage(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("planner request failed: %w", err)
	}

	plan, err := ParsePlan(reply)
	if err != nil {
		r.logger.Debugf("unparseable planner reply (%v): %s", err, truncate(reply, 2000))
		return nil, nil
	}
	return plan, nil
}

func (r *Runner) readSpec(name string) string {
	if name == "" {
		name = DefaultSpecFile
	}
	data, err := os.ReadFile(filepath.Join(r.root, name))
	if err != nil {
		return fmt.Sprintf("# (no %s present)\n", name)
	}
	return string(data)
}

func withTrailingCheck(actions types.Actions, checkPaths []string) []types.Action {
	out := make([]types.Action, 0, len(actions)+1)
	out = append(out, actions...)
	if !actions.HasKind(types.KindCheck) {
		out = append(out, &types.CheckAction{Description: "Run build/type checks", Paths: checkPaths})
	}
	return out
}
