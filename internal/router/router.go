package router

import (
	"fmt"

	"github.com/xiaot623/rica/internal/domain"
)

// Source is the read side of the agent registry.
type Source interface {
	Descriptors() []domain.AgentDescriptor
	Default() (string, bool)
}

// Router picks one agent per request. Select has no side effects.
type Router struct {
	source     Source
	classifier Classifier
}

// New creates a router over source. A nil classifier selects the keyword
// classifier.
func New(source Source, classifier Classifier) *Router {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Router{source: source, classifier: classifier}
}

// Select returns the id of the agent that should handle input. Candidates
// are agents advertising any classified or hinted capability; the highest
// priority wins and ties go to the earliest registered. With no candidate
// the default agent is used, and without one ErrRoutingFailure is returned.
func (r *Router) Select(input string, hints []string) (string, error) {
	agents := r.source.Descriptors()
	classified := r.classifier.Classify(input, agents)
	requested := make([]string, 0, len(classified)+len(hints))
	requested = append(append(requested, classified...), hints...)

	best := -1
	for i, a := range agents {
		if !intersects(a.Capabilities, requested) {
			continue
		}
		if best < 0 || a.Priority > agents[best].Priority {
			best = i
		}
	}
	if best >= 0 {
		return agents[best].ID, nil
	}
	if id, ok := r.source.Default(); ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: no agent advertises %v", domain.ErrRoutingFailure, requested)
}

// Classify exposes the tags the router would request for input.
func (r *Router) Classify(input string) []string {
	return r.classifier.Classify(input, r.source.Descriptors())
}

func intersects(caps, tags []string) bool {
	for _, c := range caps {
		for _, t := range tags {
			if c == t {
				return true
			}
		}
	}
	return false
}
