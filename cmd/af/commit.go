package main

import (
	"context"
	"errors"

	"github.com/entrhq/autoforge/pkg/git"
	"github.com/entrhq/autoforge/pkg/ui"
)

// commitWork commits everything a successful run changed. A nil completer
// gets the fallback message.
func commitWork(ctx context.Context, root string, c git.Completer, goal string, console *ui.Console) error {
	repo := git.Open(root)
	files, err := repo.ChangedFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		console.Info("Nothing to commit")
		return nil
	}

	diff, err := repo.Diff(ctx)
	if err != nil {
		diff = ""
	}
	msg := git.GenerateCommitMessage(ctx, c, goal, files, diff)
	hash, err := repo.CommitAll(ctx, msg.String())
	if errors.Is(err, git.ErrNothingToCommit) {
		console.Info("Nothing to commit")
		return nil
	}
	if err != nil {
		return err
	}
	console.OK("Committed %s: %s", hash, msg.Title)
	return nil
}
