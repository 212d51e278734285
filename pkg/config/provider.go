package config

import (
	"fmt"
	"os"

	"github.com/entrhq/autoforge/pkg/llm/openai"
)

// BuildProvider creates the planner's LLM provider based on configuration precedence:
// CLI flags > Environment variables > Config file > Defaults
func (c *Config) BuildProvider(cliModel, cliBaseURL, cliAPIKey string) (*openai.Provider, error) {
	finalModel := cliModel
	finalBaseURL := cliBaseURL
	finalAPIKey := cliAPIKey

	if finalAPIKey == "" {
		finalAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if finalBaseURL == "" {
		finalBaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if finalModel == "" {
		finalModel = c.Model
	}
	if finalBaseURL == "" {
		finalBaseURL = c.BaseURL
	}

	if finalModel == "" {
		finalModel = DefaultModel
	}

	// The project config never carries the API key.
	if finalAPIKey == "" {
		return nil, fmt.Errorf("API key is required. Set OPENAI_API_KEY environment variable or use --api-key")
	}

	providerOpts := []openai.ProviderOption{
		openai.WithModel(finalModel),
	}
	if finalBaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(finalBaseURL))
	}

	provider, err := openai.NewProvider(finalAPIKey, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	return provider, nil
}
