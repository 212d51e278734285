package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/config"
	"github.com/entrhq/autoforge/pkg/ui"
)

// stateDirs are created under .af by `af init`.
var stateDirs = []string{"state", "backups", "tmp", "logs"}

// stateIgnore keeps everything but the config out of commits.
const stateIgnore = "*\n!.gitignore\n!config.yml\n"

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize .af/ in the current directory (and git if missing)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := c.v.GetString("root")
			if root == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get working directory: %w", err)
				}
				root = wd
			}
			return initProject(cmd, root, ui.NewConsole(c.stderr))
		},
	}
}

func initProject(cmd *cobra.Command, root string, console *ui.Console) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}

	if _, err := os.Stat(filepath.Join(root, ".git")); errors.Is(err, os.ErrNotExist) {
		git := exec.CommandContext(cmd.Context(), "git", "init")
		git.Dir = root
		if out, err := git.CombinedOutput(); err != nil {
			return fmt.Errorf("git init failed: %w: %s", err, out)
		}
		console.OK("Initialized git repository")
	}

	for _, d := range stateDirs {
		if err := os.MkdirAll(filepath.Join(root, config.Dir, d), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	ignore := filepath.Join(root, config.Dir, ".gitignore")
	if _, err := os.Stat(ignore); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(ignore, []byte(stateIgnore), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", ignore, err)
		}
	}

	if _, err := os.Stat(config.Path(root)); errors.Is(err, os.ErrNotExist) {
		if err := config.Default().Save(root); err != nil {
			return err
		}
		console.OK("Wrote %s", filepath.Join(config.Dir, config.FileName))
	} else {
		console.Info("Keeping existing %s", filepath.Join(config.Dir, config.FileName))
	}

	console.OK("Initialized %s", root)
	return nil
}
