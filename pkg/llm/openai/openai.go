// Package openai provides an OpenAI-compatible chat completions provider
// for the planner.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	    openai.WithBaseURL("http://localhost:8080/v1"),
//	)
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"

	"github.com/entrhq/autoforge/pkg/llm"
	"github.com/entrhq/autoforge/pkg/llm/parser"
	"github.com/entrhq/autoforge/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTemperature sets the sampling temperature. Planning defaults to 0.2.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// NewProvider creates a new provider with the given API key.
//
// If apiKey is empty, OPENAI_API_KEY is used. If no base URL option is given,
// OPENAI_BASE_URL is consulted before falling back to DefaultBaseURL.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:       "gpt-4o",
		apiKey:      apiKey,
		httpClient:  &http.Client{},
		baseURL:     DefaultBaseURL,
		temperature: 0.2,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = strings.TrimRight(envBaseURL, "/")
		}
	}

	return p, nil
}

// StreamCompletion sends messages to the chat completions endpoint and
// streams back response chunks.
//
// Raw SSE handling is used instead of the SDK client for compatibility with
// servers that interleave SSE comments.
func (p *Provider) StreamCompletion(ctx context.Context, messages []types.Message) (<-chan *llm.StreamChunk, error) {
	resp, err := p.sendStreamRequest(ctx, messages)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStreamResponse(ctx, resp, chunks)
	return chunks, nil
}

func (p *Provider) sendStreamRequest(ctx context.Context, messages []types.Message) (*http.Response, error) {
	reqBody := map[string]interface{}{
		"model":       p.model,
		"messages":    convertToOpenAIMessages(messages),
		"stream":      true,
		"temperature": p.temperature,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("API request failed with status %d (failed to read error body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// processStreamResponse reads SSE lines until [DONE], EOF or cancellation.
func (p *Provider) processStreamResponse(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	splitter := parser.NewThinkingSplitter()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	role := ""

	send := func(batch []*llm.StreamChunk) bool {
		for _, c := range batch {
			c.Role = role
			select {
			case chunks <- c:
			case <-ctx.Done():
				chunks <- &llm.StreamChunk{Error: ctx.Err()}
				return false
			}
		}
		return true
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			if send(splitter.Flush()) {
				chunks <- &llm.StreamChunk{Role: role, Finished: true}
			}
			return
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil || len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if role == "" && choice.Delta.Role != "" {
			role = choice.Delta.Role
		}
		if choice.Delta.Content != "" && !send(splitter.Feed(choice.Delta.Content)) {
			return
		}
	}

	send(splitter.Flush())

	if err := scanner.Err(); err != nil {
		chunks <- &llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)}
	}
}

// Complete accumulates the message content of a streamed completion.
func (p *Provider) Complete(ctx context.Context, messages []types.Message) (types.Message, error) {
	stream, err := p.StreamCompletion(ctx, messages)
	if err != nil {
		return types.Message{}, err
	}

	var content strings.Builder
	for chunk := range stream {
		if chunk.IsError() {
			return types.Message{}, chunk.Error
		}
		if chunk.IsThinking() {
			continue
		}
		content.WriteString(chunk.Content)
	}

	return types.NewAssistantMessage(content.String()), nil
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// convertToOpenAIMessages converts planner messages to the SDK's param union.
func convertToOpenAIMessages(messages []types.Message) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		default:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}

var _ llm.Provider = (*Provider)(nil)
