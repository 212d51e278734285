package executor

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// runShell runs command through sh -c in dir, streaming to the executor's
// writers. A zero timeout means no limit.
func (e *Executor) runShell(ctx context.Context, dir, command string, timeout time.Duration) error {
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdin = e.stdin
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	// Orphaned grandchildren can hold the output pipes open after a kill.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	e.logger.Debugf("ran %q in %s (%s)", command, dir, time.Since(start).Round(time.Millisecond))
	if err == nil {
		return nil
	}

	cmdErr := &CommandError{Command: command, Dir: dir, ExitCode: -1, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	if timeout > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		cmdErr.Timeout = timeout
	}
	return cmdErr
}
