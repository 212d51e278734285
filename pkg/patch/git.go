package patch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const gitTimeout = 30 * time.Second

// execGit runs git in the root and returns its combined output.
func (e *Engine) execGit(ctx context.Context, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", args...)
	cmd.Dir = e.guard.Root()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return string(output), nil
}

// ensureRepo initialises a repository on branch main when the root has none.
func (e *Engine) ensureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(e.guard.Root(), ".git")); err == nil {
		return nil
	}
	e.logger.Infof("no git repository at %s; initialising one", e.guard.Root())
	if out, err := e.execGit(ctx, "init"); err != nil {
		return fmt.Errorf("%w\nOutput: %s", err, out)
	}
	if out, err := e.execGit(ctx, "checkout", "-B", "main"); err != nil {
		return fmt.Errorf("%w\nOutput: %s", err, out)
	}
	return nil
}

// applyUnified applies the diff saved at patchFile. A three-way apply is tried
// first; when it fails, a plain apply with --reject lands every hunk it can
// and leaves *.rej files for the rest.
func (e *Engine) applyUnified(ctx context.Context, diff, patchFile string) error {
	if err := e.ensureRepo(ctx); err != nil {
		return err
	}

	strip := fmt.Sprintf("-p%d", stripLevel(diff))
	snap := e.snapshot(ctx, strip, patchFile)
	out, err := e.execGit(ctx, "apply", "--3way", "--whitespace=fix", strip, patchFile)
	if err == nil {
		return nil
	}
	e.logger.Debugf("three-way apply failed, retrying with --reject: %s", strings.TrimSpace(out))
	// A conflicted three-way apply leaves markers and unmerged index entries.
	e.restore(ctx, snap)

	out, err = e.execGit(ctx, "apply", "--reject", "--whitespace=fix", strip, patchFile)
	if err == nil {
		return nil
	}

	saved := filepath.Join(e.guard.Root(), stateDir, "last.patch.rej.txt")
	if werr := os.MkdirAll(filepath.Dir(saved), 0750); werr == nil {
		if werr := os.WriteFile(saved, []byte(diff), 0644); werr != nil {
			e.logger.Warnf("failed to save rejected diff: %v", werr)
		}
	}

	return &RejectError{
		Rejects:    e.findRejects(),
		SavedPatch: saved,
		Output:     out,
		Err:        err,
	}
}

// fileSnapshot is a path's content before a three-way attempt; nil data
// means the file did not exist.
type fileSnapshot struct {
	rel  string
	abs  string
	data []byte
	mode os.FileMode
}

// snapshot records the current content of every path the diff touches, as
// listed by git apply --numstat.
func (e *Engine) snapshot(ctx context.Context, strip, patchFile string) []fileSnapshot {
	out, err := e.execGit(ctx, "apply", "--numstat", strip, patchFile)
	if err != nil {
		e.logger.Debugf("could not list diff paths: %v", err)
		return nil
	}

	var snaps []fileSnapshot
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 || strings.Contains(fields[2], " => ") {
			continue
		}
		abs, err := e.guard.Resolve(fields[2])
		if err != nil {
			continue
		}
		snap := fileSnapshot{rel: filepath.ToSlash(fields[2]), abs: abs, mode: 0644}
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			if data, err := os.ReadFile(abs); err == nil {
				snap.data = data
				snap.mode = info.Mode().Perm()
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// restore puts snapshotted files back and drops any unmerged index state
// for them.
func (e *Engine) restore(ctx context.Context, snaps []fileSnapshot) {
	if len(snaps) == 0 {
		return
	}
	paths := make([]string, 0, len(snaps))
	for _, s := range snaps {
		paths = append(paths, s.rel)
		if s.data == nil {
			if err := os.Remove(s.abs); err != nil && !errors.Is(err, os.ErrNotExist) {
				e.logger.Warnf("failed to remove %s: %v", s.rel, err)
			}
			continue
		}
		if err := os.WriteFile(s.abs, s.data, s.mode); err != nil {
			e.logger.Warnf("failed to restore %s: %v", s.rel, err)
		}
	}
	unmerged, err := e.execGit(ctx, append([]string{"ls-files", "-u", "--"}, paths...)...)
	if err != nil || strings.TrimSpace(unmerged) == "" {
		return
	}
	if out, err := e.execGit(ctx, append([]string{"reset", "-q", "--"}, paths...)...); err != nil {
		e.logger.Debugf("index reset skipped: %v %s", err, strings.TrimSpace(out))
	}
}

// stripLevel returns 1 for git-style a/ b/ paths and 0 otherwise.
func stripLevel(diff string) int {
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			return 1
		}
		if !strings.HasPrefix(line, "--- ") && !strings.HasPrefix(line, "+++ ") {
			continue
		}
		p := strings.TrimSpace(line[4:])
		if p == "/dev/null" {
			continue
		}
		if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
			return 1
		}
		return 0
	}
	return 1
}

// findRejects lists *.rej files under the root, skipping default-ignored
// directories.
func (e *Engine) findRejects() []string {
	root := e.guard.Root()
	ignore := e.guard.Ignore()
	var rejects []string

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if ignore != nil && ignore.IsDefault(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(rel, ".rej") {
			rejects = append(rejects, rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		e.logger.Warnf("failed to scan for reject files: %v", err)
	}

	sort.Strings(rejects)
	return rejects
}
