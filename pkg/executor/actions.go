package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/entrhq/autoforge/pkg/patch"
	"github.com/entrhq/autoforge/pkg/scanner"
	"github.com/entrhq/autoforge/pkg/storage"
	"github.com/entrhq/autoforge/pkg/types"
)

// runner handles one action. It is the executor's ActionVisitor.
type runner struct {
	ex       *Executor
	ctx      context.Context
	out      types.ActionOutput
	produced bool
}

var _ types.ActionVisitor = (*runner)(nil)

func (r *runner) VisitPatch(a *types.PatchAction) error {
	if strings.TrimSpace(a.Diff) == "" {
		return fmt.Errorf("patch.diff is empty")
	}
	mode, err := patch.ParseMode(r.ex.cfg.Patch.Mode)
	if err != nil {
		return err
	}

	if a.Description != "" {
		r.ex.console.Step("%s", a.Description)
	} else {
		r.ex.console.Step("Applying patch")
	}
	_, err = r.ex.patcher.Apply(r.ctx, a.Diff, mode)
	return err
}

func (r *runner) VisitExec(a *types.ExecAction) error {
	fields := strings.Fields(a.Cmd)
	if len(fields) == 0 {
		return fmt.Errorf("exec.cmd is empty")
	}
	bin := fields[0]
	if allow := r.ex.cfg.Allowlist(); len(allow) > 0 && !slices.Contains(allow, bin) {
		return &AllowlistError{Binary: bin, Allowed: allow}
	}

	dir := r.ex.guard.Root()
	if a.Cwd != "" {
		resolved, err := r.ex.guard.Resolve(a.Cwd)
		if err != nil {
			return err
		}
		dir = resolved
	}

	r.ex.console.Step("$ %s", a.Cmd)
	return r.ex.runShell(r.ctx, dir, a.Cmd, r.ex.cfg.Actions.Shell.Timeout)
}

func (r *runner) VisitCheck(a *types.CheckAction) error {
	r.ex.console.Step("Running checks…")

	paths := a.Paths
	if len(paths) == 0 {
		paths = []string{r.ex.guard.Root()}
	}
	for _, p := range paths {
		dir, err := r.ex.guard.Resolve(p)
		if err != nil {
			return err
		}
		check, err := DetectCheck(dir)
		if err != nil {
			return err
		}
		if check == nil {
			r.ex.logger.Debugf("no build check detected in %s", dir)
			continue
		}
		if !r.ex.cfg.DefaultCheck.RunBuild {
			r.ex.console.Info("Skipping %s in %s (defaultCheck.runBuild is off)", check.Command, dir)
			continue
		}
		r.ex.console.Step("$ %s", check.Command)
		if err := r.ex.runShell(r.ctx, dir, check.Command, 0); err != nil {
			return fmt.Errorf("%s check failed: %w", check.Name, err)
		}
	}
	return nil
}

func (r *runner) VisitEnvRequest(a *types.EnvRequestAction) error {
	vars, err := a.Normalize()
	if err != nil {
		return err
	}
	report, err := r.ex.env.Apply(vars)
	if err != nil {
		return err
	}

	linked := "no"
	if report.VercelLinked {
		linked = "yes"
	}
	r.ex.console.OK("Env: added %d, kept %d. Vercel linked: %s", len(report.Added), len(report.Kept), linked)
	r.out.Env = report
	r.produced = true
	return nil
}

func (r *runner) VisitReadFile(a *types.ReadFileAction) error {
	abs, err := r.ex.guard.Resolve(a.Path)
	if err != nil {
		return err
	}
	r.ex.console.Step("Reading: %s", a.Path)
	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", a.Path, err)
	}
	r.out.Path = a.Path
	r.out.Content = string(content)
	r.produced = true
	return nil
}

func (r *runner) VisitWriteFile(a *types.WriteFileAction) error {
	abs, err := r.ex.guard.Resolve(a.Path)
	if err != nil {
		return err
	}
	r.ex.console.Step("Writing: %s", a.Path)
	if err := storage.WriteFileAtomic(abs, []byte(a.Content), fileMode(abs)); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.Path, err)
	}
	r.out.Path = a.Path
	r.produced = true
	return nil
}

func (r *runner) VisitEditFile(a *types.EditFileAction) error {
	abs, err := r.ex.guard.Resolve(a.Path)
	if err != nil {
		return err
	}
	if a.OldContent == "" {
		return fmt.Errorf("edit_file.oldContent is empty")
	}
	r.ex.console.Step("Editing: %s", a.Path)

	current, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", a.Path, err)
	}
	if !strings.Contains(string(current), a.OldContent) {
		return fmt.Errorf("oldContent not found in %s", a.Path)
	}
	updated := strings.Replace(string(current), a.OldContent, a.NewContent, 1)
	if err := storage.WriteFileAtomic(abs, []byte(updated), fileMode(abs)); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.Path, err)
	}
	r.out.Path = a.Path
	r.produced = true
	return nil
}

func (r *runner) VisitScanRepo(a *types.ScanRepoAction) error {
	root := r.ex.guard.Root()
	if a.Root != "" {
		resolved, err := r.ex.guard.Resolve(a.Root)
		if err != nil {
			return err
		}
		root = resolved
	}

	opts := scanner.DefaultOptions(root)
	if a.Mode != "" {
		opts.Mode = a.Mode
	}
	opts.RespectIgnore = a.IgnoreEnabled()
	opts.Progress = r.ex.scanProgress
	opts.Logger = r.ex.logger.With("subsystem", "scanner")

	ctx, stop := signal.NotifyContext(r.ctx, r.ex.interrupts...)
	defer stop()

	res, err := scanner.Scan(ctx, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("scan canceled: %w", err)
		}
		return err
	}

	r.ex.console.OK("Scanned %d files, %d dirs, %d KiB. Cache: %s",
		res.Stats.Files, res.Stats.Dirs, res.Stats.Bytes/1024, res.CachePath)
	r.out.Path = root
	r.out.Scan = res
	r.produced = true
	return nil
}

// fileMode keeps an existing file's permissions and defaults to 0644.
func fileMode(abs string) os.FileMode {
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return 0644
		}
		return info.Mode().Perm()
	}
	return 0644
}
