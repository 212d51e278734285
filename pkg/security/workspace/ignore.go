package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// IgnoreFile is the project-level ignore file, gitignore-flavoured.
const IgnoreFile = ".afignore"

// DefaultIgnoreDirs are skipped whenever they appear as the first path
// segment: VCS metadata, dependency and output directories, and tool state.
var DefaultIgnoreDirs = []string{
	".git",
	".af",
	"node_modules",
	"dist",
	"build",
	"out",
	".next",
	"coverage",
	".cache",
	"tmp",
	"temp",
}

type ignorePattern struct {
	raw      string
	matcher  glob.Glob
	negate   bool
	dirOnly  bool
	anchored bool // pattern contains a slash: match the full relative path
}

// IgnoreMatcher decides whether a root-relative path is skipped by scans.
// Default directories always apply; patterns from .afignore and extra
// patterns are evaluated in order with last-match-wins and ! negation.
type IgnoreMatcher struct {
	defaults map[string]struct{}
	patterns []ignorePattern
}

// NewIgnoreMatcher builds a matcher for root, loading root/.afignore when present.
func NewIgnoreMatcher(root string, extra ...string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{defaults: make(map[string]struct{}, len(DefaultIgnoreDirs))}
	for _, d := range DefaultIgnoreDirs {
		m.defaults[d] = struct{}{}
	}

	lines, err := readIgnoreFile(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil, err
	}
	lines = append(lines, extra...)

	for _, line := range lines {
		if err := m.Add(line); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func readIgnoreFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return lines, nil
}

// Add compiles one gitignore-style pattern. Blank lines and # comments are skipped.
func (m *IgnoreMatcher) Add(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := ignorePattern{raw: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		line = strings.TrimPrefix(line, "/")
		p.anchored = true
	}
	if strings.Contains(line, "/") {
		p.anchored = true
	}

	g, err := glob.Compile(line, '/')
	if err != nil {
		return fmt.Errorf("invalid ignore pattern %q: %w", p.raw, err)
	}
	p.matcher = g
	m.patterns = append(m.patterns, p)
	return nil
}

// IsDefault reports whether rel starts with one of the default ignored directories.
func (m *IgnoreMatcher) IsDefault(rel string) bool {
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	_, ok := m.defaults[first]
	return ok
}

// ShouldIgnore reports whether the slash-separated relative path is ignored.
func (m *IgnoreMatcher) ShouldIgnore(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	if rel == "" || rel == "." {
		return false
	}
	if m.IsDefault(rel) {
		return true
	}

	ignored := false
	base := path.Base(rel)
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		var hit bool
		if p.anchored {
			hit = p.matcher.Match(rel)
		} else {
			hit = p.matcher.Match(base)
		}
		if hit {
			ignored = !p.negate
		}
	}
	return ignored
}
