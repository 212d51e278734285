package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autoforge/pkg/config"
	"github.com/entrhq/autoforge/pkg/env"
	"github.com/entrhq/autoforge/pkg/security/workspace"
	"github.com/entrhq/autoforge/pkg/types"
)

func newTestExecutor(t *testing.T, allow ...string) (*Executor, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	if allow != nil {
		cfg.Actions.Shell.Allow = allow
	}
	var out bytes.Buffer
	e, err := New(t.TempDir(), cfg, WithOutput(&out, &out))
	require.NoError(t, err)
	return e, &out
}

func TestExecute_RunsInOrder(t *testing.T) {
	e, _ := newTestExecutor(t, "sh")
	root := e.Root()

	res := e.Execute(context.Background(), []types.Action{
		&types.WriteFileAction{Path: "notes/log.txt", Content: "one\n"},
		&types.ExecAction{Cmd: "sh -c 'echo two >> notes/log.txt'"},
		&types.EditFileAction{Path: "notes/log.txt", OldContent: "one", NewContent: "ONE"},
		&types.ReadFileAction{Path: "notes/log.txt"},
	})

	require.True(t, res.OK, res.ErrorLog)
	assert.Empty(t, res.ErrorLog)

	data, err := os.ReadFile(filepath.Join(root, "notes", "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ONE\ntwo\n", string(data))

	require.Len(t, res.Data, 3)
	assert.Equal(t, types.KindWriteFile, res.Data[0].Kind)
	assert.Equal(t, 4, res.Data[2].Index)
	assert.Equal(t, "ONE\ntwo\n", res.Data[2].Content)
}

func TestExecute_StopsAtFirstFailure(t *testing.T) {
	e, _ := newTestExecutor(t, "sh")
	root := e.Root()

	res := e.Execute(context.Background(), []types.Action{
		&types.WriteFileAction{Path: "a.txt", Content: "a"},
		&types.ExecAction{Cmd: "sh -c 'exit 3'", Description: "break things"},
		&types.WriteFileAction{Path: "b.txt", Content: "b"},
	})

	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorLog, "action 2 exec (break things) failed")
	assert.Contains(t, res.ErrorLog, "exit code 3")
	assert.FileExists(t, filepath.Join(root, "a.txt"), "earlier actions are not undone")
	assert.NoFileExists(t, filepath.Join(root, "b.txt"))
}

func TestExecute_AllowlistRejectsUnknownBinary(t *testing.T) {
	e, out := newTestExecutor(t)

	for _, cmd := range []string{"rm -rf /", "curl http://example.com", "  python3 script.py"} {
		res := e.Execute(context.Background(), []types.Action{&types.ExecAction{Cmd: cmd}})
		bin := strings.Fields(cmd)[0]
		assert.False(t, res.OK, cmd)
		assert.Contains(t, res.ErrorLog, "'"+bin+"'")
		assert.Contains(t, res.ErrorLog, ".af/config.yml -> actions.shell.allow")
	}
	assert.Empty(t, out.String(), "nothing ran")

	r := &runner{ex: e, ctx: context.Background()}
	var allowErr *AllowlistError
	require.True(t, errors.As(r.VisitExec(&types.ExecAction{Cmd: "rm x"}), &allowErr))
	assert.Equal(t, "rm", allowErr.Binary)
}

func TestExecute_EmptyAllowlistAllowsAnything(t *testing.T) {
	e, out := newTestExecutor(t)
	e.cfg.ShellAllowlist = nil
	e.cfg.Actions.Shell.Allow = nil

	res := e.Execute(context.Background(), []types.Action{&types.ExecAction{Cmd: "echo anything"}})
	require.True(t, res.OK, res.ErrorLog)
	assert.Equal(t, "anything\n", out.String())
}

func TestExecute_ExecCwdAndTimeout(t *testing.T) {
	e, out := newTestExecutor(t, "pwd", "sleep")
	require.NoError(t, os.Mkdir(filepath.Join(e.Root(), "web"), 0755))

	res := e.Execute(context.Background(), []types.Action{&types.ExecAction{Cmd: "pwd", Cwd: "web"}})
	require.True(t, res.OK, res.ErrorLog)
	assert.Equal(t, filepath.Join(e.Root(), "web"), strings.TrimSpace(out.String()))

	res = e.Execute(context.Background(), []types.Action{&types.ExecAction{Cmd: "pwd", Cwd: "../"}})
	assert.False(t, res.OK)

	e.cfg.Actions.Shell.Timeout = 50 * time.Millisecond
	r := &runner{ex: e, ctx: context.Background()}
	err := r.VisitExec(&types.ExecAction{Cmd: "sleep 3"})
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 50*time.Millisecond, cmdErr.Timeout)
}

func TestFileActions_StayInsideRoot(t *testing.T) {
	e, _ := newTestExecutor(t)
	root := e.Root()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	escapes := []string{
		"../secret.txt",
		"a/../../secret.txt",
		filepath.Join(outside, "secret.txt"),
		"link/secret.txt",
		"/etc/passwd",
	}

	for _, p := range escapes {
		actions := []types.Action{
			&types.ReadFileAction{Path: p},
			&types.WriteFileAction{Path: p, Content: "pwned"},
			&types.EditFileAction{Path: p, OldContent: "secret", NewContent: "pwned"},
		}
		for _, a := range actions {
			r := &runner{ex: e, ctx: context.Background()}
			err := a.Accept(r)
			var containment *workspace.ContainmentError
			assert.True(t, errors.As(err, &containment), "%s %s: %v", a.Kind(), p, err)

			res := e.Execute(context.Background(), []types.Action{a})
			assert.False(t, res.OK)
			assert.Contains(t, res.ErrorLog, "outside root")
		}
	}

	data, err := os.ReadFile(filepath.Join(outside, "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data))
}

func TestEditFile_Errors(t *testing.T) {
	e, _ := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.Root(), "app.go"), []byte("package app\n"), 0600))

	res := e.Execute(context.Background(), []types.Action{
		&types.EditFileAction{Path: "app.go", OldContent: "package main", NewContent: "x"},
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorLog, "oldContent not found in app.go")

	res = e.Execute(context.Background(), []types.Action{
		&types.EditFileAction{Path: "app.go", OldContent: "app", NewContent: "web"},
	})
	require.True(t, res.OK, res.ErrorLog)

	info, err := os.Stat(filepath.Join(e.Root(), "app.go"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "mode preserved")
}

func TestExecute_PatchAction(t *testing.T) {
	e, _ := newTestExecutor(t)

	res := e.Execute(context.Background(), []types.Action{&types.PatchAction{Diff: "   "}})
	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorLog, "patch.diff is empty")

	res = e.Execute(context.Background(), []types.Action{&types.PatchAction{
		Diff: "*** Begin Patch\n*** Add File: hello.txt\n+hi\n*** End Patch",
	}})
	require.True(t, res.OK, res.ErrorLog)

	data, err := os.ReadFile(filepath.Join(e.Root(), "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestExecute_EnvRequest(t *testing.T) {
	e, _ := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.Root(), env.LocalFile), []byte("API_KEY=old\n"), 0600))

	res := e.Execute(context.Background(), []types.Action{&types.EnvRequestAction{
		Variables: []types.EnvVarRequest{{Name: "API_KEY", Value: "new"}, {Name: "DB_URL"}},
	}})
	require.True(t, res.OK, res.ErrorLog)
	require.Len(t, res.Data, 1)
	assert.Equal(t, []string{"DB_URL"}, res.Data[0].Env.Added)
	assert.Equal(t, []string{"API_KEY"}, res.Data[0].Env.Kept)
	assert.FileExists(t, filepath.Join(e.Root(), env.PendingFile))

	res = e.Execute(context.Background(), []types.Action{&types.EnvRequestAction{}})
	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorLog, "env_request missing variables[] or names[]")
}

func TestExecute_ScanRepo(t *testing.T) {
	e, _ := newTestExecutor(t)
	root := e.Root()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x", "i.js"), []byte("x"), 0644))

	res := e.Execute(context.Background(), []types.Action{&types.ScanRepoAction{Mode: types.ScanDeep}})
	require.True(t, res.OK, res.ErrorLog)
	require.Len(t, res.Data, 1)

	scan := res.Data[0].Scan
	require.NotNil(t, scan)
	require.Len(t, scan.Files, 1)
	assert.Equal(t, "src/main.go", scan.Files[0].Path)
	assert.NotEmpty(t, scan.Files[0].SHA1)
	assert.FileExists(t, scan.CachePath)

	res = e.Execute(context.Background(), []types.Action{&types.ScanRepoAction{Root: "../"}})
	assert.False(t, res.OK)
}

func TestExecute_NilAction(t *testing.T) {
	e, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), []types.Action{nil})
	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorLog, "action 1")
}

func TestExecuteActions_BadRoot(t *testing.T) {
	res := ExecuteActions(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorLog, "failed to open root")
}
