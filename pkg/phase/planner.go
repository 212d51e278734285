package phase

import (
	"context"

	"github.com/entrhq/autoforge/pkg/llm"
	"github.com/entrhq/autoforge/pkg/types"
)

// Planner turns a conversation into a reply that should contain a plan.
type Planner interface {
	Plan(ctx context.Context, messages []types.Message) (string, error)
}

// ProviderPlanner adapts an llm.Provider.
type ProviderPlanner struct {
	Provider llm.Provider
}

// Plan returns the provider's completion text.
func (p ProviderPlanner) Plan(ctx context.Context, messages []types.Message) (string, error) {
	msg, err := p.Provider.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}
