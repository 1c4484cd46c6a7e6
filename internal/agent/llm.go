package agent

import (
	"context"
	"fmt"

	"github.com/xiaot623/rica/internal/adapter/llm"
	"github.com/xiaot623/rica/internal/domain"
)

// DefaultSystemPrompt is used when an LLM agent has no prompt configured.
const DefaultSystemPrompt = "You are a helpful assistant named RICA. Keep answers short enough to be read aloud."

// LLMAgent answers with a chat completion.
type LLMAgent struct {
	client       llm.LLMClient
	model        string
	systemPrompt string
}

// NewLLMAgent creates an agent backed by client.
func NewLLMAgent(client llm.LLMClient, model, systemPrompt string) *LLMAgent {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &LLMAgent{client: client, model: model, systemPrompt: systemPrompt}
}

// Respond sends the system prompt, the history window and the input.
func (a *LLMAgent) Respond(ctx context.Context, req Request) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model:    a.model,
		Messages: a.buildMessages(req),
		User:     req.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	content, err := resp.Content()
	if err != nil {
		return "", err
	}
	return content, nil
}

func (a *LLMAgent) buildMessages(req Request) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, 2*len(req.History)+2)
	msgs = append(msgs, llm.ChatMessage{Role: "system", Content: a.systemPrompt})
	for _, turn := range req.History {
		if turn.InputText == "" {
			continue
		}
		msgs = append(msgs, llm.ChatMessage{Role: "user", Content: turn.InputText})
		if turn.Outcome == domain.OutcomeSuccess || turn.Outcome == domain.OutcomeSynthesisError {
			msgs = append(msgs, llm.ChatMessage{Role: "assistant", Content: turn.ResponseText})
		}
	}
	msgs = append(msgs, llm.ChatMessage{Role: "user", Content: req.Input})
	return msgs
}
