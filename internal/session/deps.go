// Package session runs the conversation state machine and manages the
// sessions opened by API clients.
package session

import (
	"context"

	"github.com/xiaot623/rica/internal/agent"
	"github.com/xiaot623/rica/internal/audio"
	"github.com/xiaot623/rica/internal/domain"
)

// Gateway is the audio boundary a session drives.
type Gateway interface {
	Open(ctx context.Context) error
	Close() error
	Transcribe(ctx context.Context, opts audio.TranscribeOptions) (*audio.Transcription, error)
	TranscribeAudio(ctx context.Context, data []byte, format string) (*audio.Transcription, error)
	Speak(ctx context.Context, text string, opts audio.SpeakOptions) error
}

// Selector picks the agent for an input.
type Selector interface {
	Select(input string, hints []string) (string, error)
}

// AgentSource resolves agent ids chosen by the selector.
type AgentSource interface {
	Get(id string) (agent.Agent, domain.AgentDescriptor, bool)
}

// TurnStore persists sessions and finalized turns.
type TurnStore interface {
	CreateSession(ctx context.Context, session *domain.SessionRecord) error
	MarkSessionStopped(ctx context.Context, sessionID string) error
	AppendTurn(ctx context.Context, turn *domain.Turn) error
	LastSeq(ctx context.Context, sessionID string) (int, error)
}

// Observer is notified of every status transition. It runs synchronously
// on the goroutine driving the turn and must not call back into the
// machine.
type Observer func(sessionID string, from, to domain.Status)

var (
	_ Gateway     = (*audio.Gateway)(nil)
	_ AgentSource = (*agent.Registry)(nil)
)
