package patch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autoforge/pkg/security/workspace"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	guard, err := workspace.NewGuard(t.TempDir())
	require.NoError(t, err)
	e := NewEngine(guard, nil, nil)
	var tick int64
	e.now = func() time.Time {
		tick++
		return time.UnixMilli(1_700_000_000_000 + tick)
	}
	return e, guard.Root()
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApply_AddFileScenario(t *testing.T) {
	e, root := newTestEngine(t)

	report, err := e.Apply(context.Background(), "*** Begin Patch\n*** Add File: hello.txt\n+hi\n*** End Patch", ModeAuto)
	require.NoError(t, err)

	assert.Equal(t, "hi\n", readFile(t, filepath.Join(root, "hello.txt")))
	assert.Equal(t, DialectWholeFile, report.Dialect)
	assert.Equal(t, []string{"hello.txt"}, report.Files)
	assert.FileExists(t, report.SavedPatch)
	assert.Equal(t, filepath.Join(root, ".af", "tmp"), filepath.Dir(report.SavedPatch))
}

func TestApply_UpdateBacksUpAndReplaces(t *testing.T) {
	e, root := newTestEngine(t)
	target := filepath.Join(root, "src", "app.ts")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("drifted\n"), 0644))

	patch := "*** Begin Patch\n*** Update File: src/app.ts\n@@\n-original\n+replaced\n@@\n*** End Patch"
	_, err := e.Apply(context.Background(), patch, ModeAuto)
	require.NoError(t, err, "drift is advisory")

	assert.Equal(t, "replaced\n", readFile(t, target))

	backups, err := filepath.Glob(filepath.Join(root, ".af", "backups", "*", "src", "app.ts"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "drifted\n", readFile(t, backups[0]))
}

func TestApply_MalformedSecondBlockLeavesFirstUntouched(t *testing.T) {
	e, root := newTestEngine(t)
	first := filepath.Join(root, "one.txt")
	second := filepath.Join(root, "two.txt")
	require.NoError(t, os.WriteFile(first, []byte("one\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("two\n"), 0644))

	patch := "*** Begin Patch\n" +
		"*** Update File: one.txt\n+ONE\n" +
		"*** Update File: two.txt\n-two\n" +
		"*** End Patch"

	_, err := e.Apply(context.Background(), patch, ModeAuto)
	var blockErr *BlockError
	require.True(t, errors.As(err, &blockErr))
	assert.Equal(t, 2, blockErr.Index)

	assert.Equal(t, "one\n", readFile(t, first))
	assert.Equal(t, "two\n", readFile(t, second))
}

func TestApply_RollsBackWhenLaterBlockFails(t *testing.T) {
	e, root := newTestEngine(t)
	first := filepath.Join(root, "one.txt")
	require.NoError(t, os.WriteFile(first, []byte("one\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "adir"), 0755))

	tests := []struct {
		name   string
		second string
	}{
		{"escapes root", "*** Update File: ../outside.txt\n+x\n"},
		{"target is a directory", "*** Update File: adir\n+x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := "*** Begin Patch\n" +
				"*** Update File: one.txt\n+ONE\n" +
				"*** Add File: created.txt\n+new\n" +
				tt.second +
				"*** End Patch"

			_, err := e.Apply(context.Background(), patch, ModeAuto)
			var blockErr *BlockError
			require.True(t, errors.As(err, &blockErr), "got %v", err)
			assert.Equal(t, 3, blockErr.Index)

			assert.Equal(t, "one\n", readFile(t, first), "first file restored")
			assert.NoFileExists(t, filepath.Join(root, "created.txt"), "created file removed")
			assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "outside.txt"))
		})
	}

	var containment *workspace.ContainmentError
	_, err := e.Apply(context.Background(), "*** Begin Patch\n*** Add File: /etc/x\n+x\n*** End Patch", ModeAuto)
	assert.True(t, errors.As(err, &containment))
}

func TestApply_NoMarkersIsNoop(t *testing.T) {
	e, root := newTestEngine(t)

	report, err := e.Apply(context.Background(), "please make the button blue", ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, DialectNone, report.Dialect)
	assert.FileExists(t, report.SavedPatch, "attempt is saved even when skipped")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only .af was created")
}

func TestApply_WholeFileOnlyWithoutEnvelope(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Apply(context.Background(), "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\n", ModeWholeFileOnly)
	assert.ErrorContains(t, err, "no whole-file patch blocks")
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestApply_UnifiedDiff(t *testing.T) {
	requireGit(t)
	e, root := newTestEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.txt"), []byte("hello\nworld\n"), 0644))

	diff := "--- a/greet.txt\n+++ b/greet.txt\n@@ -1,2 +1,2 @@\n hello\n-world\n+gopher\n"
	report, err := e.Apply(context.Background(), diff, ModeAuto)
	require.NoError(t, err)

	assert.Equal(t, DialectUnified, report.Dialect)
	assert.Equal(t, "hello\ngopher\n", readFile(t, filepath.Join(root, "greet.txt")))
	assert.DirExists(t, filepath.Join(root, ".git"), "repository bootstrapped")
}

func TestApply_UnifiedDiffRejects(t *testing.T) {
	requireGit(t)
	e, root := newTestEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.txt"), []byte("hello\nworld\n"), 0644))

	diff := "--- a/greet.txt\n+++ b/greet.txt\n@@ -1,2 +1,2 @@\n bonjour\n-monde\n+gopher\n"
	_, err := e.Apply(context.Background(), diff, ModeHunks)

	var rejectErr *RejectError
	require.True(t, errors.As(err, &rejectErr), "got %v", err)
	assert.Equal(t, []string{"greet.txt.rej"}, rejectErr.Rejects)
	assert.Equal(t, diff, readFile(t, filepath.Join(root, ".af", "last.patch.rej.txt")))
	assert.Equal(t, "hello\nworld\n", readFile(t, filepath.Join(root, "greet.txt")))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	m, err = ParseMode("hunks")
	require.NoError(t, err)
	assert.Equal(t, ModeHunks, m)

	_, err = ParseMode("fuzzy")
	assert.Error(t, err)
}

func TestApply_SameFileTwiceRollsBackToOriginal(t *testing.T) {
	e, root := newTestEngine(t)
	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("original\n"), 0600))

	patch := "*** Begin Patch\n" +
		"*** Update File: a.txt\n+first\n" +
		"*** Update File: a.txt\n+second\n" +
		"*** Update File: ../escape.txt\n+x\n" +
		"*** End Patch"

	_, err := e.Apply(context.Background(), patch, ModeAuto)
	var blockErr *BlockError
	require.True(t, errors.As(err, &blockErr), "got %v", err)
	assert.Equal(t, 3, blockErr.Index)

	assert.Equal(t, "original\n", readFile(t, target))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	backups, err := filepath.Glob(filepath.Join(root, ".af", "backups", "*", "a.txt"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "original\n", readFile(t, backups[0]))
}

func TestApply_AddThenUpdateSameFileIsRemovedOnRollback(t *testing.T) {
	e, root := newTestEngine(t)

	patch := "*** Begin Patch\n" +
		"*** Add File: new.txt\n+one\n" +
		"*** Update File: new.txt\n+two\n" +
		"*** Update File: ../escape.txt\n+x\n" +
		"*** End Patch"

	_, err := e.Apply(context.Background(), patch, ModeAuto)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "new.txt"))
}

func TestApply_ConflictedThreeWayLeavesNoMarkers(t *testing.T) {
	requireGit(t)
	e, root := newTestEngine(t)
	git := func(args ...string) string {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
		return string(out)
	}
	target := filepath.Join(root, "greet.txt")

	git("init", "-q")
	git("config", "user.name", "af test")
	git("config", "user.email", "af@example.com")
	git("config", "commit.gpgsign", "false")
	require.NoError(t, os.WriteFile(target, []byte("line1\nline2\nline3\n"), 0644))
	git("add", "greet.txt")
	git("commit", "-q", "-m", "base")

	require.NoError(t, os.WriteFile(target, []byte("line1\nCHANGED\nline3\n"), 0644))
	diff := git("diff")
	git("checkout", "--", "greet.txt")

	require.NoError(t, os.WriteFile(target, []byte("line1\nOTHER\nline3\n"), 0644))
	git("commit", "-q", "-am", "diverge")

	_, err := e.Apply(context.Background(), diff, ModeHunks)
	var rejectErr *RejectError
	require.True(t, errors.As(err, &rejectErr), "got %v", err)

	assert.Equal(t, "line1\nOTHER\nline3\n", readFile(t, target))
	assert.Empty(t, git("ls-files", "-u"), "no unmerged index entries")
}
