package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/entrhq/autoforge/pkg/storage"
)

// touched records a file modified by the current batch.
type touched struct {
	rel     string
	abs     string
	existed bool
	backup  string
	mode    os.FileMode
}

// applyBlocks writes every block in order. Existing files are copied into a
// fresh backup directory the first time the batch touches them; if any block
// fails, every file touched so far is restored to its pre-batch content and
// files the batch created are removed.
func (e *Engine) applyBlocks(blocks []Block) ([]string, error) {
	backupDir := filepath.Join(e.guard.Root(), stateDir, "backups", strconv.FormatInt(e.now().UnixNano(), 10))

	seen := make(map[string]*touched)
	var done []touched
	var written []string
	for i, b := range blocks {
		first, err := e.applyBlock(b, backupDir, seen)
		if first != nil {
			done = append(done, *first)
		}
		if err != nil {
			blockErr := &BlockError{Index: i + 1, Path: b.RelPath, Reason: "failed to apply", Err: err}
			if rbErr := e.rollback(done); rbErr != nil {
				return nil, errors.Join(blockErr, rbErr)
			}
			e.logger.Warnf("rolled back %d file(s) after block %d failed", len(done), i+1)
			return nil, blockErr
		}
		written = append(written, b.RelPath)
	}
	return written, nil
}

// applyBlock returns the touched record on a path's first touch in the batch,
// as soon as the file is at risk, so a failed write is still rolled back.
// Later touches of the same path reuse the first backup and return nil.
func (e *Engine) applyBlock(b Block, backupDir string, seen map[string]*touched) (*touched, error) {
	abs, err := e.guard.Resolve(b.RelPath)
	if err != nil {
		return nil, err
	}
	rel, err := e.guard.MakeRelative(abs)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return nil, fmt.Errorf("%s is a directory", rel)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	exists := err == nil

	var first *touched
	t, ok := seen[rel]
	if !ok {
		t = &touched{rel: rel, abs: abs, mode: 0644}
		if exists {
			t.existed = true
			t.mode = info.Mode().Perm()
			t.backup = filepath.Join(backupDir, filepath.FromSlash(rel))
			if err := copyFile(abs, t.backup, t.mode); err != nil {
				return nil, fmt.Errorf("failed to back up %s: %w", rel, err)
			}
		}
		seen[rel] = t
		first = t
	}

	mode := t.mode
	if exists {
		mode = info.Mode().Perm()
	}

	if b.Kind == BlockUpdate && exists && b.OldContent != nil {
		if current, err := os.ReadFile(abs); err == nil && normalize(string(current)) != normalize(*b.OldContent) {
			e.logger.Warnf("content drift for %s; applying new content anyway", rel)
		}
	}

	if err := storage.WriteFileAtomic(abs, []byte(b.Content), mode); err != nil {
		return first, err
	}

	verb := "Updated"
	if b.Kind == BlockAdd {
		verb = "Added"
	}
	e.console.OK("%s %s", verb, rel)
	return first, nil
}

func (e *Engine) rollback(done []touched) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		t := done[i]
		if !t.existed {
			if err := os.Remove(t.abs); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", t.rel, err))
			}
			continue
		}
		if err := copyFile(t.backup, t.abs, t.mode); err != nil {
			errs = append(errs, fmt.Errorf("failed to restore %s: %w", t.rel, err))
		}
	}
	return errors.Join(errs...)
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(dst, data, mode)
}
