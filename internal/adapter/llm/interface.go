// Package llm provides an abstraction over OpenAI-compatible chat APIs.
package llm

import "context"

// LLMClient defines the chat completion operation agents depend on.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
