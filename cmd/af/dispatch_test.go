package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autoforge/pkg/config"
	"github.com/entrhq/autoforge/pkg/env"
	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/phase"
	"github.com/entrhq/autoforge/pkg/queue"
	"github.com/entrhq/autoforge/pkg/types"
	"github.com/entrhq/autoforge/pkg/ui"
)

type MockPlanner struct {
	mock.Mock
}

func (m *MockPlanner) Plan(ctx context.Context, messages []types.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

type recordingExecutor struct {
	fail    string
	batches [][]types.Action
}

func (r *recordingExecutor) Execute(_ context.Context, actions []types.Action) types.Result {
	r.batches = append(r.batches, actions)
	if r.fail != "" {
		return types.Result{OK: false, ErrorLog: r.fail}
	}
	return types.Result{OK: true}
}

func newTestDispatcher(t *testing.T, planner phase.Planner) (*taskDispatcher, *recordingExecutor) {
	t.Helper()
	ex := &recordingExecutor{}
	return &taskDispatcher{
		root:     t.TempDir(),
		cfg:      config.Default(),
		executor: ex,
		newPlanner: func() (phase.Planner, error) {
			if planner == nil {
				return nil, errors.New("no planner configured")
			}
			return planner, nil
		},
		logger:  logging.Discard("test"),
		console: ui.Discard(),
	}, ex
}

func TestDispatch_Check(t *testing.T) {
	d, ex := newTestDispatcher(t, nil)

	err := d.Dispatch(context.Background(), types.Task{
		ID: "t1", Type: types.TaskCheck,
		Meta: map[string]any{"paths": []any{"web", "api"}},
	})
	require.NoError(t, err)
	require.Len(t, ex.batches, 1)
	check, ok := ex.batches[0][0].(*types.CheckAction)
	require.True(t, ok)
	assert.Equal(t, []string{"web", "api"}, check.Paths)

	ex.fail = "action 1 check (web) failed: boom"
	err = d.Dispatch(context.Background(), types.Task{ID: "t2", Type: types.TaskCheck})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDispatch_LiteralPlan(t *testing.T) {
	d, ex := newTestDispatcher(t, nil)

	err := d.Dispatch(context.Background(), types.Task{
		ID: "t1", Type: types.TaskGenerate,
		Meta: map[string]any{"plan": "here:\n```json\n{\"actions\":[{\"type\":\"exec\",\"cmd\":\"npm i\"}]}\n```"},
	})
	require.NoError(t, err)
	require.Len(t, ex.batches, 1)
	assert.Equal(t, types.KindExec, ex.batches[0][0].Kind())

	err = d.Dispatch(context.Background(), types.Task{
		ID: "t2", Type: types.TaskEdit,
		Meta: map[string]any{"actions": []any{
			map[string]any{"type": "write_file", "path": "a.txt", "content": "a"},
			map[string]any{"type": "check"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, ex.batches, 2)
	assert.Len(t, ex.batches[1], 2)

	err = d.Dispatch(context.Background(), types.Task{
		ID: "t3", Type: types.TaskEdit,
		Meta: map[string]any{"actions": []any{map[string]any{"type": "teleport"}}},
	})
	assert.ErrorContains(t, err, "invalid meta.actions")
}

func TestDispatch_GoalUsesPlanner(t *testing.T) {
	planner := new(MockPlanner)
	planner.On("Plan", mock.Anything, mock.Anything).
		Return(`{"actions":[{"type":"write_file","path":"a.txt","content":"a"}]}`, nil).Once()
	d, ex := newTestDispatcher(t, planner)

	err := d.Dispatch(context.Background(), types.Task{
		ID: "t1", Type: types.TaskGenerate,
		Meta: map[string]any{"args": "build a landing page"},
	})
	require.NoError(t, err)
	planner.AssertExpectations(t)
	require.Len(t, ex.batches, 1)
	assert.Equal(t, types.KindCheck, ex.batches[0][len(ex.batches[0])-1].Kind())
}

func TestDispatch_GoalNotReached(t *testing.T) {
	planner := new(MockPlanner)
	planner.On("Plan", mock.Anything, mock.Anything).
		Return(`{"actions":[{"type":"check"}]}`, nil)
	d, ex := newTestDispatcher(t, planner)
	d.cfg.Planner.MaxRetries = 2
	ex.fail = "action 1 check failed: tsc exploded"

	err := d.Dispatch(context.Background(), types.Task{
		ID: "t1", Type: types.TaskGenerate, Meta: map[string]any{"goal": "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goal not reached after 2 attempt(s)")
	assert.Contains(t, err.Error(), "tsc exploded")
}

func TestDispatch_Errors(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	ctx := context.Background()

	err := d.Dispatch(ctx, types.Task{ID: "t1", Type: types.TaskGenerate})
	assert.ErrorIs(t, err, errNoGoal)

	err = d.Dispatch(ctx, types.Task{ID: "t2", Type: types.TaskEdit, Meta: map[string]any{"goal": "x"}})
	assert.ErrorContains(t, err, "no planner configured")

	err = d.Dispatch(ctx, types.Task{ID: "t3", Type: "launch"})
	assert.ErrorContains(t, err, "unknown task type")
}

func TestDispatch_DeployWaitsForPendingSync(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, types.Task{ID: "t1", Type: types.TaskDeploy}))

	m := env.NewManager(d.root, nil)
	require.NoError(t, m.QueueProviderSync([]types.EnvVarRequest{
		{Name: "DATABASE_URL", RequiredProviders: []types.Provider{types.ProviderVercel, types.ProviderRailway}},
		{Name: "STRIPE_KEY"},
	}))

	err := d.Dispatch(ctx, types.Task{ID: "t2", Type: types.TaskDeploy})
	var human *queue.HumanActionError
	require.ErrorAs(t, err, &human)
	assert.Contains(t, human.Instruction, "af queue resume t2")
	assert.Equal(t, []string{"DATABASE_URL -> vercel, railway", "STRIPE_KEY"}, human.Checklist)

	_, err = env.ClearPending(d.root, nil)
	require.NoError(t, err)
	assert.NoError(t, d.Dispatch(ctx, types.Task{ID: "t2", Type: types.TaskDeploy}))
}

func TestMetaStrings(t *testing.T) {
	meta := map[string]any{
		"list":  []any{"a", 1, "b"},
		"typed": []string{"x"},
		"csv":   "web,api",
		"empty": "",
	}
	assert.Equal(t, []string{"a", "b"}, metaStrings(meta, "list"))
	assert.Equal(t, []string{"x"}, metaStrings(meta, "typed"))
	assert.Equal(t, []string{"web", "api"}, metaStrings(meta, "csv"))
	assert.Nil(t, metaStrings(meta, "empty"))
	assert.Nil(t, metaStrings(meta, "missing"))
}

func TestDispatch_AutoCommit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	d, _ := newTestDispatcher(t, nil)
	d.cfg.Git.AutoCommit = true

	gitCmd := func(args ...string) string {
		cmd := exec.Command("git", args...)
		cmd.Dir = d.root
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
		return string(out)
	}
	gitCmd("init")
	gitCmd("config", "user.name", "af test")
	gitCmd("config", "user.email", "af@example.com")
	gitCmd("config", "commit.gpgsign", "false")

	require.NoError(t, os.WriteFile(filepath.Join(d.root, "page.txt"), []byte("hi\n"), 0644))
	err := d.Dispatch(context.Background(), types.Task{
		ID: "t1", Type: types.TaskGenerate,
		Meta: map[string]any{"plan": `{"actions":[{"type":"check"}]}`},
	})
	require.NoError(t, err)

	assert.Equal(t, "feat: update 1 file(s) via af", strings.TrimSpace(gitCmd("log", "-1", "--format=%s")))
}
