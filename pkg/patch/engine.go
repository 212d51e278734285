// Package patch applies planner patches to the working tree.
//
// Two dialects are understood. Unified diffs go through git apply; failures
// leave reject files and are not rolled back. Whole-file envelopes
// ("*** Begin Patch" with Add File / Update File blocks) replace entire files
// as one transaction: either every block lands or every touched file is
// restored from a timestamped backup.
//
// Every attempted patch is first saved under .af/tmp for forensic replay.
package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/security/workspace"
	"github.com/entrhq/autoforge/pkg/ui"
)

const stateDir = ".af"

// Mode selects the dialect.
type Mode string

const (
	// ModeAuto picks the envelope dialect when its marker is present and
	// unified diff otherwise.
	ModeAuto          Mode = "auto"
	ModeWholeFileOnly Mode = "whole-file-only"
	ModeHunks         Mode = "hunks"
)

// ParseMode converts a config value, treating "" as auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeWholeFileOnly, ModeHunks:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid patch mode: %s (must be 'auto', 'whole-file-only', or 'hunks')", s)
}

// Dialect names what Apply actually did.
type Dialect string

const (
	DialectNone      Dialect = "none"
	DialectUnified   Dialect = "unified"
	DialectWholeFile Dialect = "whole-file"
)

// Report describes a successful Apply.
type Report struct {
	Dialect    Dialect
	SavedPatch string   // .af/tmp copy of the attempted text
	Files      []string // files written by whole-file blocks
}

// Engine applies patches inside one sandbox root.
type Engine struct {
	guard   *workspace.Guard
	logger  *logging.Logger
	console *ui.Console
	now     func() time.Time
}

// NewEngine creates an engine for guard's root. Nil logger and console discard.
func NewEngine(guard *workspace.Guard, logger *logging.Logger, console *ui.Console) *Engine {
	if logger == nil {
		logger = logging.Discard("patch")
	}
	if console == nil {
		console = ui.Discard()
	}
	return &Engine{guard: guard, logger: logger, console: console, now: time.Now}
}

// Apply applies text in the given mode. Text carrying neither diff markers
// nor an envelope is skipped with a warning.
func (e *Engine) Apply(ctx context.Context, text string, mode Mode) (*Report, error) {
	if strings.TrimSpace(text) == "" {
		e.console.Warn("Empty patch text; nothing to apply.")
		return &Report{Dialect: DialectNone}, nil
	}

	saved, err := e.saveAttempt(text)
	if err != nil {
		return nil, err
	}
	report := &Report{Dialect: DialectNone, SavedPatch: saved}

	envelope := HasEnvelope(text)
	if !envelope && !HasDiffMarkers(text) {
		e.console.Warn("Patch has no diff markers or patch envelope; skipping.")
		e.logger.Warnf("skipped patch without markers (saved to %s)", saved)
		return report, nil
	}

	useEnvelope := envelope
	switch mode {
	case ModeWholeFileOnly:
		useEnvelope = true
	case ModeHunks:
		useEnvelope = false
	}

	if useEnvelope {
		blocks, err := ParseEnvelope(text)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			return nil, fmt.Errorf("no whole-file patch blocks found (saved to %s)", saved)
		}
		files, err := e.applyBlocks(blocks)
		if err != nil {
			return nil, err
		}
		report.Dialect = DialectWholeFile
		report.Files = files
		e.logger.Infof("applied %d whole-file block(s)", len(files))
		return report, nil
	}

	if err := e.applyUnified(ctx, text, saved); err != nil {
		return nil, err
	}
	report.Dialect = DialectUnified
	e.console.OK("Applied unified diff")
	e.logger.Infof("applied unified diff %s", saved)
	return report, nil
}

// saveAttempt writes text to .af/tmp/patch-<unix ms>.diff.
func (e *Engine) saveAttempt(text string) (string, error) {
	dir := filepath.Join(e.guard.Root(), stateDir, "tmp")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create patch directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("patch-%d.diff", e.now().UnixMilli()))
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to save patch: %w", err)
	}
	return path, nil
}
