// Package agent defines the responder interface, its built-in variants and
// the ordered registry the router selects from.
package agent

import (
	"context"

	"github.com/xiaot623/rica/internal/domain"
)

// Request is the input handed to an agent for a single turn.
type Request struct {
	SessionID string
	Input     string
	// History is a read-only window of earlier turns, oldest first.
	History []domain.Turn
}

// Agent produces a textual response. Implementations must honor ctx
// cancellation and deadlines and must not retain or mutate History.
type Agent interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Func adapts an ordinary function to the Agent interface.
type Func func(ctx context.Context, req Request) (string, error)

// Respond calls f.
func (f Func) Respond(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
