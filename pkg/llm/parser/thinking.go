// Package parser separates <thinking> sections from streamed planner replies,
// so reasoning text never reaches the JSON plan extractor.
package parser

import (
	"strings"

	"github.com/entrhq/autoforge/pkg/llm"
)

const (
	openTag  = "<thinking>"
	closeTag = "</thinking>"
)

// ThinkingSplitter routes streamed text into thinking and message chunks.
// Tags may be split across Feed calls; a '<' that cannot start either tag is
// released as plain text as soon as that is certain.
type ThinkingSplitter struct {
	inThinking bool
	tag        strings.Builder // candidate tag, starting at '<'
	seg        strings.Builder // text of the current kind not yet emitted
	out        []*llm.StreamChunk
}

// NewThinkingSplitter creates a splitter outside any thinking section.
func NewThinkingSplitter() *ThinkingSplitter {
	return &ThinkingSplitter{}
}

// Feed consumes one content delta and returns the chunks it completed.
func (s *ThinkingSplitter) Feed(content string) []*llm.StreamChunk {
	for _, ch := range content {
		s.feedRune(ch)
	}
	s.endSegment()
	return s.take()
}

// Flush releases anything still buffered, including an unfinished tag.
func (s *ThinkingSplitter) Flush() []*llm.StreamChunk {
	s.releaseTag()
	s.endSegment()
	return s.take()
}

// InThinking reports whether the splitter is inside a thinking section.
func (s *ThinkingSplitter) InThinking() bool {
	return s.inThinking
}

func (s *ThinkingSplitter) feedRune(ch rune) {
	if s.tag.Len() == 0 {
		if ch == '<' {
			s.tag.WriteRune(ch)
			return
		}
		s.seg.WriteRune(ch)
		return
	}

	if ch == '<' {
		s.releaseTag()
		s.tag.WriteRune(ch)
		return
	}

	s.tag.WriteRune(ch)
	candidate := s.tag.String()

	switch candidate {
	case openTag:
		s.tag.Reset()
		s.endSegment()
		s.inThinking = true
		return
	case closeTag:
		s.tag.Reset()
		s.endSegment()
		s.inThinking = false
		return
	}

	if !strings.HasPrefix(openTag, candidate) && !strings.HasPrefix(closeTag, candidate) {
		s.releaseTag()
	}
}

// releaseTag demotes a candidate tag to ordinary text.
func (s *ThinkingSplitter) releaseTag() {
	if s.tag.Len() == 0 {
		return
	}
	s.seg.WriteString(s.tag.String())
	s.tag.Reset()
}

func (s *ThinkingSplitter) endSegment() {
	if s.seg.Len() == 0 {
		return
	}
	kind := llm.ContentTypeMessage
	if s.inThinking {
		kind = llm.ContentTypeThinking
	}
	text := s.seg.String()
	s.seg.Reset()

	if n := len(s.out); n > 0 && s.out[n-1].Type == kind {
		s.out[n-1].Content += text
		return
	}
	s.out = append(s.out, &llm.StreamChunk{Content: text, Type: kind})
}

func (s *ThinkingSplitter) take() []*llm.StreamChunk {
	out := s.out
	s.out = nil
	return out
}
