package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidMode    = errors.New("invalid mode")
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotRunning     = errors.New("session not running")
	ErrTurnInProgress = errors.New("turn in progress")
	ErrRoutingFailure = errors.New("no agent available for request")
	ErrAgent          = errors.New("agent failed")
	ErrTranscription  = errors.New("transcription failed")
	ErrSynthesis      = errors.New("speech synthesis failed")
	ErrCancelled      = errors.New("turn cancelled")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrDuplicateAgent = errors.New("agent already registered")
)

// TurnError is returned alongside a finalized turn that did not succeed.
type TurnError struct {
	Outcome Outcome
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Outcome, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel that corresponds to the outcome.
func (e *TurnError) Is(target error) bool {
	switch e.Outcome {
	case OutcomeAgentError:
		return target == ErrAgent
	case OutcomeTranscriptionError:
		return target == ErrTranscription
	case OutcomeSynthesisError:
		return target == ErrSynthesis
	case OutcomeRoutingFailure:
		return target == ErrRoutingFailure
	case OutcomeCancelled:
		return target == ErrCancelled
	}
	return false
}

// NewTurnError wraps err with the outcome it produced.
func NewTurnError(outcome Outcome, err error) *TurnError {
	return &TurnError{Outcome: outcome, Err: err}
}
