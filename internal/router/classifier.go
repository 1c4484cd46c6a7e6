// Package router selects the agent that handles a request.
package router

import (
	"regexp"
	"sync"

	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/tools"
)

// Classifier maps input text to the capability tags it requires.
// Implementations must be deterministic for a given input and agent set.
type Classifier interface {
	Classify(input string, agents []domain.AgentDescriptor) []string
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(input string, agents []domain.AgentDescriptor) []string

// Classify calls f.
func (f ClassifierFunc) Classify(input string, agents []domain.AgentDescriptor) []string {
	return f(input, agents)
}

// KeywordClassifier tags input with the capabilities of every agent whose
// keywords occur in it. Input matching nothing is tagged general-chat.
type KeywordClassifier struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewKeywordClassifier creates a keyword classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{cache: make(map[string]*regexp.Regexp)}
}

// Classify returns tags in agent order without duplicates.
func (k *KeywordClassifier) Classify(input string, agents []domain.AgentDescriptor) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, a := range agents {
		if !k.matchesAny(input, a.Keywords) {
			continue
		}
		for _, c := range a.Capabilities {
			if !seen[c] {
				seen[c] = true
				tags = append(tags, c)
			}
		}
	}
	if len(tags) == 0 {
		return []string{domain.CapabilityGeneralChat}
	}
	return tags
}

func (k *KeywordClassifier) matchesAny(input string, keywords []string) bool {
	for _, kw := range keywords {
		if p := k.pattern(kw); p != nil && p.MatchString(input) {
			return true
		}
	}
	return false
}

func (k *KeywordClassifier) pattern(keyword string) *regexp.Regexp {
	k.mu.Lock()
	defer k.mu.Unlock()
	if p, ok := k.cache[keyword]; ok {
		return p
	}
	var p *regexp.Regexp
	if compiled, err := tools.CompileKeywords([]string{keyword}); err == nil && len(compiled) == 1 {
		p = compiled[0]
	}
	k.cache[keyword] = p
	return p
}
