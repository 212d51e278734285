package phase

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	errorLogLimit = 20000
	tinyFixLimit  = 4000
)

// SystemPolicy constrains what the planner may emit.
const SystemPolicy = `<policy>
You are the autoforge build agent. Reply with JSON only: an object with an "actions" array and an optional "notes" string.
Allowed action types:
- "patch": { "type":"patch", "diff":"...", "description":"..." }
  * Either a unified diff with correct '---'/'+++' markers and @@ hunks,
  * or a whole-file envelope: "*** Begin Patch", then "*** Add File: <path>" or "*** Update File: <path>" blocks whose lines start with '+', then "*** End Patch".
  * Use UTF-8 and LF line endings.
- "exec": { "type":"exec", "cmd":"...", "cwd":"optional" }
  * Only commands the project already uses (npm, npx, node, git, tsc, eslint, go, ...). Commands outside the allowlist are rejected.
- "check": { "type":"check", "paths":["optional"] }
  * Runs the build or typecheck for the given paths.
- "env_request": { "type":"env_request", "variables":[{ "name":"...", "requiredProviders":["local","github","vercel","railway"], "scopes":["development","preview","production"] }] }
  * Never put secret values in the plan. Never write to .env; requested keys go to .env.local.
- "read_file", "write_file", "edit_file": { "path":"...", "content":"...", "oldContent":"...", "newContent":"..." }
- "scan_repo": { "type":"scan_repo", "mode":"fast|deep" }
Paths are relative to the repository root and must stay inside it.
</policy>

<rules>
- Re-runs must keep working: skip recreating files that are already correct.
- When checks fail, propose targeted patches only.
- Prefer patches over shell commands.
</rules>`

func firstPrompt(goal, spec string, checkPaths []string) string {
	paths := "(repo root)"
	if len(checkPaths) > 0 {
		paths = strings.Join(checkPaths, ", ")
	}
	return fmt.Sprintf(`Goal:
%s

Project spec:
---
%s
---

Check paths: %s

Plan the next set of actions toward a working build. Emit JSON only.`, goal, spec, paths)
}

func fixPrompt(errorLog string) string {
	return fmt.Sprintf(`The previous actions failed. Error log:

<<<ERROR LOG START>>>
%s
<<<ERROR LOG END>>>

Propose the smallest set of additional actions that fixes the build and passes checks. Emit JSON only.`,
		truncate(strings.TrimSpace(errorLog), errorLogLimit))
}

func tinyFixPrompt(errorLog string) string {
	return fmt.Sprintf("You returned invalid JSON. Create one small \"patch\" action that fixes this error:\n%s\nReturn JSON only.",
		truncate(errorLog, tinyFixLimit))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
