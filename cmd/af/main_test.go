package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autoforge/pkg/config"
	"github.com/entrhq/autoforge/pkg/types"
)

// runAF executes the CLI in-process against root.
func runAF(t *testing.T, root string, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	_, err := runAF(t, root, "", "init")
	require.NoError(t, err)
	return root
}

func TestInit(t *testing.T) {
	root := newProject(t)

	for _, d := range stateDirs {
		assert.DirExists(t, filepath.Join(root, config.Dir, d))
	}
	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Allowlist(), cfg.Allowlist())

	// A second init keeps the edited config.
	cfg.Model = "custom"
	require.NoError(t, cfg.Save(root))
	_, err = runAF(t, root, "", "init")
	require.NoError(t, err)
	cfg, err = config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Model)
}

func TestExec_FromStdin(t *testing.T) {
	root := newProject(t)
	plan := "Sure!\n```json\n" + `{"actions":[{"type":"write_file","path":"src/a.txt","content":"hello"}]}` + "\n```"

	out, err := runAF(t, root, plan, "--json", "exec", "-")
	require.NoError(t, err)

	var res types.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.OK)

	data, err := os.ReadFile(filepath.Join(root, "src", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestExec_FailureExitsNonZero(t *testing.T) {
	root := newProject(t)
	plan := `{"actions":[{"type":"exec","cmd":"whoami"}]}`

	out, err := runAF(t, root, plan, "--json", "exec", "-")
	require.ErrorIs(t, err, errActionsFailed)

	var res types.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorLog, "not in allowlist")
}

func TestQueueLifecycle(t *testing.T) {
	root := newProject(t)

	out, err := runAF(t, root, "", "--json", "queue", "add", "generate", "build", "a", "blog")
	require.NoError(t, err)
	var added map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	id := added["id"]
	require.NotEmpty(t, id)

	_, err = runAF(t, root, "", "queue", "add", "check", "--path", "web", "--meta", "owner=me")
	require.NoError(t, err)

	_, err = runAF(t, root, "", "queue", "add", "launch")
	assert.ErrorContains(t, err, "invalid task type")
	_, err = runAF(t, root, "", "queue", "add", "check", "--meta", "novalue")
	assert.ErrorContains(t, err, "invalid --meta")

	out, err = runAF(t, root, "", "--json", "queue", "list")
	require.NoError(t, err)
	var tasks []types.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 2)
	assert.Equal(t, "build a blog", tasks[0].MetaString("goal"))
	assert.Equal(t, types.StatusQueued, tasks[0].Status)
	assert.Equal(t, "me", tasks[1].MetaString("owner"))
	assert.Equal(t, []any{"web"}, tasks[1].Meta["paths"])

	out, err = runAF(t, root, "", "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "build a blog")
	assert.Contains(t, out, "STATUS")

	// Queued tasks cannot be resumed.
	_, err = runAF(t, root, "", "queue", "resume", id)
	assert.Error(t, err)

	_, err = runAF(t, root, "", "queue", "remove", id)
	require.NoError(t, err)
	_, err = runAF(t, root, "", "queue", "remove", id)
	assert.Error(t, err)

	out, err = runAF(t, root, "", "queue", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 task(s)")
}

func TestQueueAdd_ValidatesPlan(t *testing.T) {
	root := newProject(t)

	_, err := runAF(t, root, "not a plan", "queue", "add", "edit", "--plan", "-")
	assert.Error(t, err)

	_, err = runAF(t, root, `[{"type":"check"}]`, "queue", "add", "edit", "--plan", "-")
	require.NoError(t, err)
}

func TestEnvSyncStatus(t *testing.T) {
	root := newProject(t)

	out, err := runAF(t, root, "", "env", "sync-status")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending environment syncs.")

	plan := `{"actions":[{"type":"env_request","variables":[{"name":"API_KEY","requiredProviders":["vercel"]}]}]}`
	_, err = runAF(t, root, plan, "exec", "-")
	require.NoError(t, err)

	out, err = runAF(t, root, "", "env", "sync-status")
	require.NoError(t, err)
	assert.Contains(t, out, "API_KEY")
	assert.Contains(t, out, "vercel")

	out, err = runAF(t, root, "", "env", "clear", "API_KEY")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 1 variable(s)")
}

func TestDaemonOnce(t *testing.T) {
	root := newProject(t)
	plan := `{"actions":[{"type":"write_file","path":"done.txt","content":"ok"}]}`
	_, err := runAF(t, root, plan, "queue", "add", "generate", "--plan", "-")
	require.NoError(t, err)

	_, err = runAF(t, root, "", "daemon", "--once")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "done.txt"))
	out, err := runAF(t, root, "", "--json", "queue", "list")
	require.NoError(t, err)
	var tasks []types.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, types.StatusDone, tasks[0].Status)
}
