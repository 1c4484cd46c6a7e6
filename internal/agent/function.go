package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/xiaot623/rica/internal/policy"
	"github.com/xiaot623/rica/internal/tools"
)

// ErrNoAction is returned when no local action matches the input.
var ErrNoAction = errors.New("no action matches request")

// Policy decides whether an action may run.
type Policy interface {
	Allowed(ctx context.Context, input policy.Input) (bool, error)
}

// FunctionAgent resolves the input to a local action and runs it.
type FunctionAgent struct {
	id      string
	actions *tools.Registry
	policy  Policy
	denied  []string
}

// NewFunctionAgent creates a function agent. policy may be nil, in which
// case every action is allowed.
func NewFunctionAgent(id string, actions *tools.Registry, p Policy, denied []string) *FunctionAgent {
	return &FunctionAgent{id: id, actions: actions, policy: p, denied: denied}
}

// Respond runs the first action whose keywords match the input.
func (a *FunctionAgent) Respond(ctx context.Context, req Request) (string, error) {
	action, ok := a.actions.Match(req.Input)
	if !ok {
		return "", ErrNoAction
	}

	if a.policy != nil {
		allowed, err := a.policy.Allowed(ctx, policy.Input{
			Action:  action.Name,
			AgentID: a.id,
			Text:    req.Input,
			Denied:  a.denied,
		})
		if err != nil {
			return "", fmt.Errorf("policy check for %s failed: %w", action.Name, err)
		}
		if !allowed {
			return fmt.Sprintf("Sorry, I'm not allowed to run %s.", action.Name), nil
		}
	}

	out, err := a.actions.Execute(ctx, action.Name, req.Input)
	if err != nil {
		return "", fmt.Errorf("action %s failed: %w", action.Name, err)
	}
	return out, nil
}

// Keywords lists the phrases this agent can act on.
func (a *FunctionAgent) Keywords() []string {
	return a.actions.Keywords()
}
