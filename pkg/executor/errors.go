package executor

import (
	"fmt"
	"strings"
	"time"
)

// AllowlistError reports an exec action whose leading token is not allowed.
type AllowlistError struct {
	Binary  string
	Allowed []string
}

func (e *AllowlistError) Error() string {
	return fmt.Sprintf("command '%s' is not in allowlist. Add it under .af/config.yml -> actions.shell.allow", e.Binary)
}

// CommandError reports a shell command that exited unsuccessfully.
type CommandError struct {
	Command  string
	Dir      string
	ExitCode int // -1 when the process never produced one
	Timeout  time.Duration
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command '%s' failed", e.Command)
	if e.Timeout > 0 {
		fmt.Fprintf(&b, " (timed out after %s)", e.Timeout)
	} else if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap returns the underlying error
func (e *CommandError) Unwrap() error {
	return e.Err
}
