// Package llm provides the planner's language-model provider abstraction.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []types.Message{
//	    types.NewSystemMessage(policy),
//	    types.NewUserMessage(goal),
//	})
package llm

import (
	"context"

	"github.com/entrhq/autoforge/pkg/types"
)

// Provider defines the interface for LLM integrations.
//
// Providers handle API communication only; turning replies into plans is the
// phase runner's job.
type Provider interface {
	// StreamCompletion sends messages to the LLM and streams back response chunks.
	//
	// The channel is closed when streaming completes or an error occurs.
	// Stream-time errors are sent as chunks with Error set; the returned error
	// covers only failures to start the stream.
	StreamCompletion(ctx context.Context, messages []types.Message) (<-chan *StreamChunk, error)

	// Complete accumulates StreamCompletion into one assistant message.
	// Thinking content is dropped.
	Complete(ctx context.Context, messages []types.Message) (types.Message, error)

	// GetModel returns the model name being used.
	GetModel() string

	// GetBaseURL returns the base URL being used for API requests.
	GetBaseURL() string
}
