package git

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/autoforge/pkg/phase"
	"github.com/entrhq/autoforge/pkg/types"
)

const (
	maxDiffChars  = 3000
	maxTitleChars = 80
)

// Completer is the planner-side dependency: one chat completion.
type Completer interface {
	Plan(ctx context.Context, messages []types.Message) (string, error)
}

// CommitMessage is a conventional-commit title with an optional body.
type CommitMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (m CommitMessage) String() string {
	if m.Body == "" {
		return m.Title
	}
	return m.Title + "\n\n" + m.Body
}

// FallbackMessage is used when no completer is available or its reply is
// unusable.
func FallbackMessage(files int) CommitMessage {
	return CommitMessage{
		Title: fmt.Sprintf("feat: update %d file(s) via af", files),
		Body:  "Auto-generated commit.",
	}
}

// GenerateCommitMessage asks c for a message describing the changes. It
// never fails; any problem yields FallbackMessage.
func GenerateCommitMessage(ctx context.Context, c Completer, goal string, files []string, diff string) CommitMessage {
	if c == nil {
		return FallbackMessage(len(files))
	}

	reply, err := c.Plan(ctx, []types.Message{
		types.NewSystemMessage("You are a release/commit assistant. Produce a clear conventional commit title (max 80 chars) and a concise body."),
		types.NewUserMessage(commitPrompt(goal, files, diff)),
	})
	if err != nil {
		return FallbackMessage(len(files))
	}

	raw, ok := phase.ExtractJSON(reply)
	if !ok {
		return FallbackMessage(len(files))
	}
	var msg CommitMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return FallbackMessage(len(files))
	}
	msg.Title = strings.TrimSpace(msg.Title)
	if msg.Title == "" {
		return FallbackMessage(len(files))
	}
	if len(msg.Title) > maxTitleChars {
		msg.Title = msg.Title[:maxTitleChars]
	}
	msg.Body = strings.TrimSpace(msg.Body)
	return msg
}

func commitPrompt(goal string, files []string, diff string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal:\n%s\n\n", goal)
	sb.WriteString("Files changed:\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	sb.WriteString("\nDiff:\n")
	if len(diff) > maxDiffChars {
		sb.WriteString(diff[:maxDiffChars])
		sb.WriteString("\n... (diff truncated)")
	} else {
		sb.WriteString(diff)
	}
	sb.WriteString("\n\nReturn STRICT JSON: {\"title\":\"<conventional commit>\",\"body\":\"<details>\"}")
	return sb.String()
}
