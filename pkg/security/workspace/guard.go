// Package workspace provides the sandbox root for every file operation the
// executor performs. It locates the project root, resolves relative and
// absolute paths against it, and rejects anything that escapes it.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoRoot is returned by FindRoot when no enclosing repository exists.
var ErrNoRoot = errors.New("no project root found (run inside a git repository or pass --root)")

// ContainmentError reports a path that resolves outside the sandbox root.
// It is always fatal and never retried.
type ContainmentError struct {
	Path     string // path as given by the caller
	Resolved string // absolute path after resolution
	Root     string
}

func (e *ContainmentError) Error() string {
	return fmt.Sprintf("path '%s' resolves to '%s', outside root '%s'", e.Path, e.Resolved, e.Root)
}

// Guard enforces sandbox boundary restrictions on file paths.
type Guard struct {
	root          string // absolute, symlink-free
	ignoreMatcher *IgnoreMatcher
}

// NewGuard creates a guard rooted at dir. The directory must exist; it is
// made absolute and its symlinks are evaluated so prefix comparisons are stable
// (macOS /var -> /private/var).
func NewGuard(dir string) (*Guard, error) {
	if dir == "" {
		return nil, fmt.Errorf("root directory cannot be empty")
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate root directory symlinks: %w", err)
	}

	info, err := os.Stat(evalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root '%s' is not a directory", dir)
	}

	ignoreMatcher, err := NewIgnoreMatcher(evalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ignore matcher: %w", err)
	}

	return &Guard{
		root:          evalPath,
		ignoreMatcher: ignoreMatcher,
	}, nil
}

// FindRoot walks up from start until it finds a directory containing .git.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve start directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoRoot
		}
		dir = parent
	}
}

// Root returns the absolute path of the sandbox root.
func (g *Guard) Root() string {
	return g.root
}

// Resolve converts a relative or absolute path into an absolute path and
// verifies it is the root itself or a descendant of it. Relative paths are
// joined to the root. Returns *ContainmentError on escape.
func (g *Guard) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	var absPath string
	if filepath.IsAbs(path) {
		absPath = filepath.Clean(path)
	} else {
		absPath = filepath.Join(g.root, path)
	}

	evalPath := resolveSymlinks(absPath)
	if !g.contains(evalPath) {
		return "", &ContainmentError{Path: path, Resolved: evalPath, Root: g.root}
	}

	return evalPath, nil
}

// IsWithinRoot reports whether absPath is the root or a child of it.
func (g *Guard) IsWithinRoot(absPath string) bool {
	return g.contains(resolveSymlinks(filepath.Clean(absPath)))
}

func (g *Guard) contains(evalPath string) bool {
	if evalPath == g.root {
		return true
	}
	return strings.HasPrefix(evalPath+string(filepath.Separator), g.root+string(filepath.Separator))
}

// MakeRelative converts an absolute path inside the root to a slash-separated
// path relative to it.
func (g *Guard) MakeRelative(absPath string) (string, error) {
	if !g.IsWithinRoot(absPath) {
		return "", &ContainmentError{Path: absPath, Resolved: absPath, Root: g.root}
	}

	relPath, err := filepath.Rel(g.root, resolveSymlinks(absPath))
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}

	return filepath.ToSlash(relPath), nil
}

// Ignore returns the guard's ignore matcher.
func (g *Guard) Ignore() *IgnoreMatcher {
	return g.ignoreMatcher
}

// resolveSymlinks resolves symlinks in a path, handling non-existent paths
// by resolving the deepest existing ancestor and re-attaching the rest.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path

	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath || dir == "." {
			return path
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}
