package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xiaot623/rica/internal/domain"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session with a taken id.
	ErrSessionExists = errors.New("session already exists")
)

// Manager owns the sessions opened through the API. Sessions are
// independent; they share only the agent registry and the audio gateway.
type Manager struct {
	gateway Gateway
	router  Selector
	agents  AgentSource
	base    Options

	mu        sync.RWMutex
	sessions  map[string]*Machine
	observers []Observer
}

// NewManager creates a manager. base is copied into every new session;
// its ID is ignored and its Observer receives every session's transitions.
func NewManager(gateway Gateway, router Selector, agents AgentSource, base Options) *Manager {
	m := &Manager{
		gateway:  sharedGateway{gateway},
		router:   router,
		agents:   agents,
		sessions: make(map[string]*Machine),
	}
	if base.Observer != nil {
		m.observers = append(m.observers, base.Observer)
	}
	base.Observer = m.notify
	m.base = base
	return m
}

// AddObserver registers o for the transitions of all sessions.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

func (m *Manager) notify(sessionID string, from, to domain.Status) {
	m.mu.RLock()
	observers := m.observers
	m.mu.RUnlock()
	for _, o := range observers {
		o(sessionID, from, to)
	}
}

// Create starts a new session. An empty id generates one.
func (m *Manager) Create(ctx context.Context, id string, mode domain.Mode) (*Machine, error) {
	opts := m.base
	opts.ID = id
	if mode != "" {
		opts.Mode = mode
	}
	machine := New(m.gateway, m.router, m.agents, opts)

	m.mu.Lock()
	if _, exists := m.sessions[machine.ID()]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, machine.ID())
	}
	m.sessions[machine.ID()] = machine
	m.mu.Unlock()

	if err := machine.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, machine.ID())
		m.mu.Unlock()
		return nil, err
	}
	return machine, nil
}

// GetOrCreate returns the session with id, creating it in mode if needed.
func (m *Manager) GetOrCreate(ctx context.Context, id string, mode domain.Mode) (*Machine, error) {
	if machine, err := m.Get(id); err == nil {
		return machine, nil
	}
	machine, err := m.Create(ctx, id, mode)
	if err != nil {
		// Lost a race with a concurrent create.
		if existing, getErr := m.Get(id); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return machine, nil
}

// Get looks up a session.
func (m *Manager) Get(id string) (*Machine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return machine, nil
}

// List returns snapshots of all sessions ordered by creation time.
func (m *Manager) List() []domain.SessionSnapshot {
	m.mu.RLock()
	out := make([]domain.SessionSnapshot, 0, len(m.sessions))
	for _, machine := range m.sessions {
		out = append(out, machine.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Remove stops a session and forgets it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	machine, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := machine.Stop(ctx); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		return err
	}
	return nil
}

// StopAll stops every session.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Machine)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, machine := range sessions {
		wg.Add(1)
		go func(machine *Machine) {
			defer wg.Done()
			_ = machine.Stop(ctx)
		}(machine)
	}
	wg.Wait()
}

// sharedGateway keeps one session from closing the gateway used by others.
// The owner of the underlying gateway opens and closes it.
type sharedGateway struct {
	Gateway
}

func (sharedGateway) Open(context.Context) error { return nil }
func (sharedGateway) Close() error               { return nil }
