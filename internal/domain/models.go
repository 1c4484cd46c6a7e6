package domain

import "time"

// TurnTimestamps records when a turn passed each stage.
type TurnTimestamps struct {
	Received  time.Time  `json:"received"`
	Routed    *time.Time `json:"routed,omitempty"`
	Responded *time.Time `json:"responded,omitempty"`
}

// Turn is one request/response exchange. Turns are immutable once
// appended to a session history.
type Turn struct {
	ID                string         `json:"turn_id"`
	SessionID         string         `json:"session_id"`
	Seq               int            `json:"seq"`
	Mode              Mode           `json:"mode"`
	InputText         string         `json:"input_text"`
	RawAudioRef       string         `json:"raw_audio_ref,omitempty"`
	SelectedAgentID   string         `json:"selected_agent_id,omitempty"`
	ResponseText      string         `json:"response_text"`
	Timestamps        TurnTimestamps `json:"timestamps"`
	Outcome           Outcome        `json:"outcome"`
	Spoken            bool           `json:"spoken"`
	SpeechInterrupted bool           `json:"speech_interrupted,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID              string    `json:"session_id"`
	Mode            Mode      `json:"mode"`
	Status          Status    `json:"status"`
	ActiveAgentHint string    `json:"active_agent_hint,omitempty"`
	TurnCount       int       `json:"turn_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	ID        string
	Mode      Mode
	CreatedAt time.Time
	StoppedAt *time.Time
}

// AgentDescriptor describes a registered agent.
type AgentDescriptor struct {
	ID           string    `json:"agent_id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Kind         AgentKind `json:"kind" yaml:"kind"`
	Capabilities []string  `json:"capabilities" yaml:"capabilities"`
	Priority     int       `json:"priority" yaml:"priority"`
	Keywords     []string  `json:"keywords,omitempty" yaml:"keywords"`
}

// HasCapability reports whether the descriptor advertises tag.
func (d AgentDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}
