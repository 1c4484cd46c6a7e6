package agent

import (
	"fmt"
	"sync"

	"github.com/xiaot623/rica/internal/domain"
)

type entry struct {
	desc  domain.AgentDescriptor
	agent Agent
}

// Registry holds agents in registration order. It is populated at startup
// and read-mostly afterwards; writes happen only through Register and Remove.
type Registry struct {
	mu        sync.RWMutex
	entries   []entry
	defaultID string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an agent.
func (r *Registry) Register(desc domain.AgentDescriptor, a Agent) error {
	if desc.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if a == nil {
		return fmt.Errorf("agent %s: implementation is required", desc.ID)
	}
	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("agent %s: at least one capability is required", desc.ID)
	}
	if desc.Name == "" {
		desc.Name = desc.ID
	}
	desc.Capabilities = append([]string(nil), desc.Capabilities...)
	desc.Keywords = append([]string(nil), desc.Keywords...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(desc.ID) >= 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateAgent, desc.ID)
	}
	r.entries = append(r.entries, entry{desc: desc, agent: a})
	return nil
}

// Remove deletes an agent. Removing the default agent clears the default.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
	if r.defaultID == id {
		r.defaultID = ""
	}
	return nil
}

// SetDefault designates the agent used when no capability matches.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(id) < 0 {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	r.defaultID = id
	return nil
}

// Default returns the default agent id, if one is registered.
func (r *Registry) Default() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID, r.defaultID != ""
}

// Get looks up an agent by id.
func (r *Registry) Get(id string) (Agent, domain.AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexLocked(id)
	if i < 0 {
		return nil, domain.AgentDescriptor{}, false
	}
	return r.entries[i].agent, r.entries[i].desc, true
}

// Descriptors returns a copy of all descriptors in registration order.
func (r *Registry) Descriptors() []domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AgentDescriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.desc
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) indexLocked(id string) int {
	for i, e := range r.entries {
		if e.desc.ID == id {
			return i
		}
	}
	return -1
}
