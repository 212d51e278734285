package patch

import (
	"strings"
)

const (
	beginMarker  = "*** Begin Patch"
	endMarker    = "*** End Patch"
	addHeader    = "*** Add File:"
	updateHeader = "*** Update File:"
)

// BlockKind distinguishes whole-file block types.
type BlockKind string

const (
	BlockAdd    BlockKind = "add"
	BlockUpdate BlockKind = "update"
)

// Block is one whole-file operation from a patch envelope. For updates,
// OldContent is advisory: drift from the file on disk is logged, never fatal.
type Block struct {
	Kind       BlockKind
	RelPath    string
	OldContent *string
	Content    string // new file content, always newline-terminated
}

// HasEnvelope reports whether text contains a whole-file patch envelope.
func HasEnvelope(text string) bool {
	return strings.Contains(text, beginMarker)
}

// HasDiffMarkers reports whether text looks like a unified diff.
func HasDiffMarkers(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "diff --git") ||
			strings.HasPrefix(line, "--- ") ||
			strings.HasPrefix(line, "+++ ") ||
			strings.HasPrefix(line, "@@ ") {
			return true
		}
	}
	return false
}

// ParseEnvelope extracts every block from every Begin/End Patch envelope in
// text. Any malformed block fails the whole parse.
func ParseEnvelope(text string) ([]Block, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		blocks  []Block
		inside  bool
		header  string
		body    []string
		started bool
	)

	flush := func() error {
		if !started {
			return nil
		}
		b, err := buildBlock(len(blocks)+1, header, body)
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
		started, header, body = false, "", nil
		return nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inside:
			if strings.HasPrefix(trimmed, beginMarker) {
				inside = true
			}
		case strings.HasPrefix(trimmed, endMarker):
			if err := flush(); err != nil {
				return nil, err
			}
			inside = false
		case strings.HasPrefix(trimmed, addHeader), strings.HasPrefix(trimmed, updateHeader):
			if err := flush(); err != nil {
				return nil, err
			}
			header, started = trimmed, true
		case trimmed == "*** End of File":
			// Trailer some models emit after the last hunk; no meaning here.
		case strings.HasPrefix(trimmed, "*** "):
			return nil, &BlockError{Index: len(blocks) + 1, Reason: "unsupported directive " + trimmed}
		case started:
			body = append(body, line)
		case trimmed != "":
			return nil, &BlockError{Index: len(blocks) + 1, Reason: "content outside of a file block"}
		}
	}

	if inside {
		return nil, &BlockError{Index: len(blocks) + 1, Reason: "missing " + endMarker}
	}
	return blocks, nil
}

func buildBlock(index int, header string, body []string) (Block, error) {
	var b Block
	var rest string
	if strings.HasPrefix(header, addHeader) {
		b.Kind = BlockAdd
		rest = strings.TrimPrefix(header, addHeader)
	} else {
		b.Kind = BlockUpdate
		rest = strings.TrimPrefix(header, updateHeader)
	}

	b.RelPath = strings.TrimSpace(rest)
	if b.RelPath == "" {
		return b, &BlockError{Index: index, Reason: "missing file path"}
	}

	body = trimTrailingBlank(body)

	if b.Kind == BlockAdd {
		out := make([]string, 0, len(body))
		for _, l := range body {
			out = append(out, strings.TrimPrefix(l, "+"))
		}
		b.Content = withNewline(strings.Join(out, "\n"))
		return b, nil
	}

	section := updateSection(body)
	var oldLines, newLines []string
	for _, l := range section {
		switch {
		case strings.HasPrefix(l, "+"):
			newLines = append(newLines, l[1:])
		case strings.HasPrefix(l, "-"):
			oldLines = append(oldLines, l[1:])
		}
	}
	if newLines == nil {
		return b, &BlockError{Index: index, Path: b.RelPath, Reason: "update has no '+' lines"}
	}
	if oldLines != nil {
		old := strings.Join(oldLines, "\n")
		b.OldContent = &old
	}
	b.Content = withNewline(strings.Join(newLines, "\n"))
	return b, nil
}

// updateSection keeps the lines between the first two "@@" delimiters, or
// everything after a lone one.
func updateSection(body []string) []string {
	first := -1
	for i, l := range body {
		if !strings.HasPrefix(strings.TrimSpace(l), "@@") {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		return body[first+1 : i]
	}
	if first >= 0 {
		return body[first+1:]
	}
	return body
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// normalize is the comparison form used for drift detection.
func normalize(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), " \t\r\n")
}
