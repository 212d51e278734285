package llm

// ContentType distinguishes reasoning text from the reply proper.
type ContentType string

const (
	ContentTypeMessage  ContentType = "message"
	ContentTypeThinking ContentType = "thinking"
)

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Error    error
	Role     string
	Content  string
	Type     ContentType
	Finished bool
}

// IsError reports whether the chunk carries a stream error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// IsThinking reports whether the chunk is reasoning content.
func (c *StreamChunk) IsThinking() bool {
	return c.Type == ContentTypeThinking
}
