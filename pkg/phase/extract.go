package phase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/autoforge/pkg/types"
)

// fence is one ``` or ~~~ block found in a reply.
type fence struct {
	lang string
	body string
}

// fencedBlocks returns every closed code fence in text, in order.
func fencedBlocks(text string) []fence {
	var (
		out     []fence
		open    bool
		char    byte
		length  int
		current fence
		body    []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if !open {
			if len(trimmed) >= 3 && (trimmed[0] == '`' || trimmed[0] == '~') {
				n := countLeading(trimmed, trimmed[0])
				if n >= 3 {
					open, char, length = true, trimmed[0], n
					current = fence{lang: strings.ToLower(strings.TrimSpace(trimmed[n:]))}
					body = nil
				}
			}
			continue
		}
		if len(trimmed) > 0 && trimmed[0] == char {
			n := countLeading(trimmed, char)
			if n >= length && n == len(trimmed) {
				current.body = strings.Join(body, "\n")
				out = append(out, current)
				open = false
				continue
			}
		}
		body = append(body, line)
	}
	return out
}

func countLeading(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

// ExtractJSON returns the first balanced top-level JSON object in raw, or
// the first top-level array when no object is present. A ```json fence is
// preferred, then any fence, then the raw text. Braces inside string
// literals do not count.
func ExtractJSON(raw string) (string, bool) {
	candidates := make([]string, 0, 3)
	blocks := fencedBlocks(raw)
	for _, b := range blocks {
		if b.lang == "json" {
			candidates = append(candidates, b.body)
			break
		}
	}
	if len(blocks) > 0 {
		candidates = append(candidates, blocks[0].body)
	}
	candidates = append(candidates, raw)

	for _, c := range candidates {
		if s, ok := balanced(c); ok {
			return s, true
		}
	}
	return "", false
}

// balanced scans text for top-level bracketed values. An object nested in an
// array is part of the array, not a candidate of its own.
func balanced(text string) (string, bool) {
	var array string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end, ok := closing(text, i)
		if !ok {
			continue
		}
		if text[i] == '{' {
			return text[i:end], true
		}
		if array == "" {
			array = text[i:end]
		}
		i = end - 1
	}
	return array, array != ""
}

// closing returns the index just past the bracket that closes text[start].
func closing(text string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// ParsePlan extracts and decodes a plan from a planner reply. A bare action
// array is accepted as a plan without notes. An object must carry an
// "actions" field; an empty list is a valid plan, a missing one is not.
func ParsePlan(raw string) (*types.Plan, error) {
	s, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON found in planner reply")
	}

	if strings.HasPrefix(s, "[") {
		var actions types.Actions
		if err := json.Unmarshal([]byte(s), &actions); err != nil {
			return nil, fmt.Errorf("invalid action list: %w", err)
		}
		return &types.Plan{Actions: actions}, nil
	}

	var shape struct {
		Actions json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal([]byte(s), &shape); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if len(shape.Actions) == 0 || string(shape.Actions) == "null" {
		return nil, fmt.Errorf("invalid plan: missing \"actions\" list")
	}

	var plan types.Plan
	if err := json.Unmarshal([]byte(s), &plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}
