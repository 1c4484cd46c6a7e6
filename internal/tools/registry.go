// Package tools holds the local actions the function agent can run.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ExecutorFunc runs an action for the given user input.
type ExecutorFunc func(ctx context.Context, input string) (string, error)

// Action is a named local capability with the phrases that trigger it.
type Action struct {
	Name        string
	Description string
	Keywords    []string
	Exec        ExecutorFunc

	patterns []*regexp.Regexp
}

// Registry stores actions in registration order.
type Registry struct {
	mu      sync.RWMutex
	actions []*Action
	byName  map[string]*Action
}

// DefaultRegistry holds the built-in actions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Action),
	}
}

// Register adds an action. Keywords are matched case-insensitively on word
// boundaries.
func (r *Registry) Register(action Action) error {
	if action.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if action.Exec == nil {
		return fmt.Errorf("executor is required")
	}
	patterns, err := CompileKeywords(action.Keywords)
	if err != nil {
		return fmt.Errorf("action %s: %w", action.Name, err)
	}
	action.patterns = patterns

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[action.Name]; exists {
		return fmt.Errorf("action already registered for %s", action.Name)
	}
	a := action
	r.actions = append(r.actions, &a)
	r.byName[a.Name] = &a
	return nil
}

// Match returns the first registered action whose keywords occur in input.
func (r *Registry) Match(input string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.actions {
		for _, p := range a.patterns {
			if p.MatchString(input) {
				return a, true
			}
		}
	}
	return nil, false
}

// Execute runs the named action.
func (r *Registry) Execute(ctx context.Context, name, input string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("action name is required")
	}
	r.mu.RLock()
	a := r.byName[name]
	r.mu.RUnlock()
	if a == nil {
		return "", fmt.Errorf("no executor registered for %s", name)
	}
	return a.Exec(ctx, input)
}

// Clone returns a registry holding the same actions. Registering on the
// clone leaves r untouched.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	c.actions = append(c.actions, r.actions...)
	for name, a := range r.byName {
		c.byName[name] = a
	}
	return c
}

// Keywords returns every keyword registered across all actions, in order.
func (r *Registry) Keywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, a := range r.actions {
		out = append(out, a.Keywords...)
	}
	return out
}

// Names lists the registered actions in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.actions))
	for i, a := range r.actions {
		names[i] = a.Name
	}
	return names
}

// CompileKeywords turns phrases into case-insensitive word-bounded patterns.
func CompileKeywords(keywords []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		p, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("invalid keyword %q: %w", kw, err)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Register adds an action to the default registry.
func Register(action Action) error {
	return DefaultRegistry.Register(action)
}

// MustRegister adds an action to the default registry or panics.
func MustRegister(action Action) {
	if err := Register(action); err != nil {
		panic(err)
	}
}
