// Package domain defines the core domain models for the assistant.
package domain

// Mode selects how a session takes input and delivers output.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeVoice || m == ModeText
}

// ParseMode converts a user supplied string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", ErrInvalidMode
	}
	return m, nil
}

// Status represents the state of a session.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusIdle          Status = "idle"
	StatusListening     Status = "listening"
	StatusRouting       Status = "routing"
	StatusExecuting     Status = "executing"
	StatusResponding    Status = "responding"
	StatusSpeaking      Status = "speaking"
	StatusError         Status = "error"
	StatusStopped       Status = "stopped"
)

// Busy reports whether a turn is in flight while the session is in status s.
func (s Status) Busy() bool {
	switch s {
	case StatusListening, StatusRouting, StatusExecuting, StatusResponding, StatusSpeaking, StatusError:
		return true
	}
	return false
}

// Outcome is the final classification of a turn.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeAgentError         Outcome = "agent_error"
	OutcomeTranscriptionError Outcome = "transcription_error"
	OutcomeSynthesisError     Outcome = "synthesis_error"
	OutcomeRoutingFailure     Outcome = "routing_failure"
	OutcomeCancelled          Outcome = "cancelled"
)

// AgentKind identifies the family an agent belongs to.
type AgentKind string

const (
	AgentKindLLM      AgentKind = "llm"
	AgentKindFunction AgentKind = "function"
	AgentKindCustom   AgentKind = "custom"
)

// Well-known capability tags.
const (
	CapabilityGeneralChat  = "general-chat"
	CapabilityFunctionCall = "function-call"
	CapabilityCustomPrefix = "custom:"
)
