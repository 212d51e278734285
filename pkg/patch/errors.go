package patch

import (
	"fmt"
	"strings"
)

// RejectError reports a unified diff that git could not apply. Rejects lists
// the *.rej files git left behind, relative to the root.
type RejectError struct {
	Rejects    []string
	SavedPatch string // copy of the diff kept for inspection
	Output     string // git's combined output
	Err        error
}

func (e *RejectError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "git apply failed; saved the diff to %s", e.SavedPatch)
	if len(e.Rejects) > 0 {
		fmt.Fprintf(&b, "; rejects: %s", strings.Join(e.Rejects, ", "))
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&b, "\n%s", out)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *RejectError) Unwrap() error {
	return e.Err
}

// BlockError reports a whole-file block that could not be parsed or applied.
// When it comes from Apply, every file touched by the batch has already been
// restored.
type BlockError struct {
	Index  int // 1-based block number within the patch
	Path   string
	Reason string
	Err    error
}

func (e *BlockError) Error() string {
	msg := fmt.Sprintf("patch block %d", e.Index)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *BlockError) Unwrap() error {
	return e.Err
}
