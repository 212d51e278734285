// Package git commits the work a run leaves in the tree.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// ErrNothingToCommit is returned by CommitAll on a clean tree.
var ErrNothingToCommit = errors.New("nothing to commit")

// Repo runs git commands in one working tree.
type Repo struct {
	root    string
	timeout time.Duration
}

// Open returns a Repo for root. The repository itself is not checked.
func Open(root string) *Repo {
	return &Repo{root: root, timeout: defaultTimeout}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", args...)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w, stderr: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ChangedFiles lists paths with uncommitted changes, deletions excluded.
func (r *Repo) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		// XY <path>, or XY <old> -> <new> for renames
		if len(line) < 4 {
			continue
		}
		if line[0] == 'D' || line[1] == 'D' {
			continue
		}
		path := line[3:]
		if _, renamed, ok := strings.Cut(path, " -> "); ok {
			path = renamed
		}
		files = append(files, strings.Trim(path, `"`))
	}
	return files, nil
}

// Diff returns the staged and unstaged changes against HEAD. A repository
// without commits diffs the index instead.
func (r *Repo) Diff(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "diff", "HEAD")
	if err == nil {
		return out, nil
	}
	return r.run(ctx, "diff", "--cached")
}

// CommitAll stages everything and commits it with message, returning the
// short hash.
func (r *Repo) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	status, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		return "", ErrNothingToCommit
	}
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}

	hash, err := r.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash: %w", err)
	}
	return strings.TrimSpace(hash), nil
}
