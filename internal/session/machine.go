package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xiaot623/rica/internal/agent"
	"github.com/xiaot623/rica/internal/audio"
	"github.com/xiaot623/rica/internal/domain"
)

// Response texts used when a turn cannot produce a real answer.
const (
	AgentErrorText         = "I encountered an error processing that request"
	RoutingFailureText     = "Sorry, I don't have an agent that can help with that."
	TranscriptionErrorText = "Sorry, I didn't catch that."
	CancelledText          = "Request cancelled."
)

const persistTimeout = 5 * time.Second

// Options configures a Machine.
type Options struct {
	ID                 string
	Mode               domain.Mode
	RecognitionTimeout time.Duration
	PhraseLimit        time.Duration
	AgentTimeout       time.Duration
	HistoryWindow      int
	Voice              audio.SpeakOptions
	Observer           Observer
	Store              TurnStore
	Logger             zerolog.Logger
}

// Machine is one conversation. At most one turn runs at a time; the
// Process methods block until their turn is finalized.
type Machine struct {
	id        string
	gateway   Gateway
	router    Selector
	agents    AgentSource
	opts      Options
	logger    zerolog.Logger
	createdAt time.Time

	mu       sync.Mutex
	status   domain.Status
	mode     domain.Mode
	history  []domain.Turn
	hint     string
	seqBase  int
	starting bool
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a machine in the uninitialized state.
func New(gateway Gateway, router Selector, agents AgentSource, opts Options) *Machine {
	id := opts.ID
	if id == "" {
		id = "sess_" + uuid.New().String()[:8]
	}
	mode := opts.Mode
	if !mode.Valid() {
		mode = domain.ModeText
	}
	return &Machine{
		id:        id,
		gateway:   gateway,
		router:    router,
		agents:    agents,
		opts:      opts,
		logger:    opts.Logger.With().Str("session_id", id).Logger(),
		createdAt: time.Now(),
		status:    domain.StatusUninitialized,
		mode:      mode,
	}
}

// ID returns the session id.
func (m *Machine) ID() string { return m.id }

// Status returns the current status.
func (m *Machine) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Mode returns the current mode.
func (m *Machine) Mode() domain.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Snapshot returns a read-only view of the session.
func (m *Machine) Snapshot() domain.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.SessionSnapshot{
		ID:              m.id,
		Mode:            m.mode,
		Status:          m.status,
		ActiveAgentHint: m.hint,
		TurnCount:       len(m.history),
		CreatedAt:       m.createdAt,
	}
}

// History returns a copy of all finalized turns, oldest first.
func (m *Machine) History() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Turn(nil), m.history...)
}

// Start opens the audio gateway and moves the session to idle. Starting an
// idle session is a no-op.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.status == domain.StatusStopped || m.stopping:
		m.mu.Unlock()
		return domain.ErrNotRunning
	case m.status == domain.StatusIdle:
		m.mu.Unlock()
		return nil
	case m.starting || m.status.Busy():
		m.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	m.starting = true
	mode := m.mode
	m.mu.Unlock()

	err := m.gateway.Open(ctx)
	seqBase := 0
	if err == nil {
		seqBase = m.restore(ctx, mode)
	}

	m.mu.Lock()
	m.starting = false
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to open audio gateway: %w", err)
	}
	if m.stopping || m.status == domain.StatusStopped {
		m.mu.Unlock()
		m.release(ctx)
		return domain.ErrNotRunning
	}
	m.seqBase = seqBase
	m.status = domain.StatusIdle
	m.mu.Unlock()

	m.notify(domain.StatusUninitialized, domain.StatusIdle)
	m.logger.Info().Str("mode", string(mode)).Msg("session started")
	return nil
}

// restore records the session and returns the last persisted turn
// sequence, so a reused session id continues its history.
func (m *Machine) restore(ctx context.Context, mode domain.Mode) int {
	if m.opts.Store == nil {
		return 0
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.opts.Store.CreateSession(pctx, &domain.SessionRecord{ID: m.id, Mode: mode, CreatedAt: m.createdAt}); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist session")
		return 0
	}
	seq, err := m.opts.Store.LastSeq(pctx, m.id)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to load last turn sequence")
		return 0
	}
	return seq
}

// release closes the gateway and marks the persisted session stopped.
func (m *Machine) release(ctx context.Context) {
	if err := m.gateway.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to close audio gateway")
	}
	if m.opts.Store == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.opts.Store.MarkSessionStopped(pctx, m.id); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist session stop")
	}
}

// Stop cancels any in-flight turn, waits for it to finish and closes the
// gateway. Later calls return ErrNotRunning. When ctx expires first, Stop
// returns its error and the teardown completes once the turn finalizes.
func (m *Machine) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.status == domain.StatusStopped || m.stopping {
		m.mu.Unlock()
		return domain.ErrNotRunning
	}
	m.stopping = true
	wasOpen := m.status != domain.StatusUninitialized
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			detached := context.WithoutCancel(ctx)
			go func() {
				<-done
				m.teardown(detached, wasOpen)
			}()
			return ctx.Err()
		}
	}
	m.teardown(ctx, wasOpen)
	return nil
}

func (m *Machine) teardown(ctx context.Context, wasOpen bool) {
	m.mu.Lock()
	from := m.status
	m.status = domain.StatusStopped
	m.mu.Unlock()
	m.notify(from, domain.StatusStopped)

	if wasOpen {
		m.release(ctx)
	}
	m.logger.Info().Msg("session stopped")
}

// SetMode switches between voice and text. It is only allowed between turns.
func (m *Machine) SetMode(mode domain.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.status == domain.StatusStopped || m.stopping:
		return domain.ErrNotRunning
	case m.status.Busy():
		return domain.ErrTurnInProgress
	}
	m.mode = mode
	return nil
}

// Cancel aborts the in-flight turn, if any. A turn cancelled while
// speaking keeps its response; otherwise it finalizes as cancelled.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == domain.StatusStopped {
		return domain.ErrNotRunning
	}
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// ProcessTextInput runs a turn for typed input.
func (m *Machine) ProcessTextInput(ctx context.Context, text string) (*domain.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	tc, turn, err := m.beginTurn(ctx, domain.StatusRouting)
	if err != nil {
		return nil, err
	}
	turn.InputText = strings.TrimSpace(text)
	return m.runTurn(tc, turn)
}

// ProcessVoiceInput listens on the microphone and runs a turn for the
// recognized phrase.
func (m *Machine) ProcessVoiceInput(ctx context.Context) (*domain.Turn, error) {
	return m.processSpeech(ctx, func(tc context.Context) (*audio.Transcription, error) {
		return m.gateway.Transcribe(tc, audio.TranscribeOptions{
			Timeout:     m.opts.RecognitionTimeout,
			PhraseLimit: m.opts.PhraseLimit,
		})
	})
}

// ProcessAudioInput runs a turn for recorded audio supplied by a client.
func (m *Machine) ProcessAudioInput(ctx context.Context, data []byte, format string) (*domain.Turn, error) {
	return m.processSpeech(ctx, func(tc context.Context) (*audio.Transcription, error) {
		return m.gateway.TranscribeAudio(tc, data, format)
	})
}

func (m *Machine) processSpeech(ctx context.Context, transcribe func(context.Context) (*audio.Transcription, error)) (*domain.Turn, error) {
	tc, turn, err := m.beginTurn(ctx, domain.StatusListening)
	if err != nil {
		return nil, err
	}

	tr, err := await(tc.ctx, "transcription", transcribe)
	if err != nil {
		if tc.ctx.Err() != nil {
			return m.finish(tc, turn, domain.OutcomeCancelled, CancelledText, context.Canceled)
		}
		m.logger.Warn().Err(err).Str("turn_id", turn.ID).Msg("transcription failed")
		turn.ResponseText = TranscriptionErrorText
		turn.Outcome = domain.OutcomeTranscriptionError
		m.stampResponse(turn)
		return m.finalize(tc, turn, domain.NewTurnError(domain.OutcomeTranscriptionError, err))
	}
	turn.InputText = tr.Text
	turn.RawAudioRef = tr.AudioRef
	m.transition(domain.StatusRouting)
	return m.runTurn(tc, turn)
}

// turnContext carries the per-turn cancellation state.
type turnContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	mode   domain.Mode
	from   context.Context
}

func (m *Machine) beginTurn(ctx context.Context, first domain.Status) (*turnContext, *domain.Turn, error) {
	m.mu.Lock()
	switch {
	case m.status == domain.StatusStopped || m.status == domain.StatusUninitialized || m.stopping:
		m.mu.Unlock()
		return nil, nil, domain.ErrNotRunning
	case m.status.Busy():
		m.mu.Unlock()
		return nil, nil, domain.ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	tc := &turnContext{ctx: turnCtx, cancel: cancel, done: make(chan struct{}), mode: m.mode, from: ctx}
	m.cancel, m.done = cancel, tc.done
	turn := &domain.Turn{
		ID:         "turn_" + uuid.New().String()[:8],
		SessionID:  m.id,
		Seq:        m.seqBase + len(m.history) + 1,
		Mode:       m.mode,
		Timestamps: domain.TurnTimestamps{Received: time.Now()},
	}
	m.status = first
	m.mu.Unlock()

	m.notify(domain.StatusIdle, first)
	return tc, turn, nil
}

func (m *Machine) runTurn(tc *turnContext, turn *domain.Turn) (*domain.Turn, error) {
	log := m.logger.With().Str("turn_id", turn.ID).Logger()

	agentID, err := m.router.Select(turn.InputText, nil)
	var impl agent.Agent
	if err == nil {
		var ok bool
		if impl, _, ok = m.agents.Get(agentID); !ok {
			err = fmt.Errorf("%w: selected agent %s is not registered", domain.ErrRoutingFailure, agentID)
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("routing failed")
		turn.ResponseText = RoutingFailureText
		turn.Outcome = domain.OutcomeRoutingFailure
		m.respond(tc, turn)
		return m.finalize(tc, turn, domain.NewTurnError(domain.OutcomeRoutingFailure, err))
	}

	routed := time.Now()
	turn.Timestamps.Routed = &routed
	turn.SelectedAgentID = agentID
	m.mu.Lock()
	m.hint = agentID
	m.mu.Unlock()
	if tc.ctx.Err() != nil {
		return m.finish(tc, turn, domain.OutcomeCancelled, CancelledText, context.Canceled)
	}

	m.transition(domain.StatusExecuting)
	actx := tc.ctx
	if m.opts.AgentTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(tc.ctx, m.opts.AgentTimeout)
		defer cancel()
	}
	req := agent.Request{
		SessionID: m.id,
		Input:     turn.InputText,
		History:   m.window(),
	}
	started := time.Now()
	text, err := await(actx, "agent "+agentID, func(ctx context.Context) (string, error) {
		return impl.Respond(ctx, req)
	})
	if tc.ctx.Err() != nil {
		return m.finish(tc, turn, domain.OutcomeCancelled, CancelledText, context.Canceled)
	}
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("agent returned an empty response")
	}
	if err != nil {
		log.Error().Err(err).Str("agent_id", agentID).Msg("agent failed")
		turn.ResponseText = AgentErrorText
		turn.Outcome = domain.OutcomeAgentError
		m.respond(tc, turn)
		return m.finalize(tc, turn, domain.NewTurnError(domain.OutcomeAgentError, fmt.Errorf("agent %s: %w", agentID, err)))
	}
	log.Debug().Str("agent_id", agentID).Dur("latency", time.Since(started)).Msg("agent responded")

	turn.ResponseText = text
	turn.Outcome = domain.OutcomeSuccess
	m.respond(tc, turn)
	return m.finalize(tc, turn, nil)
}

// respond stamps the response and speaks it in voice mode.
func (m *Machine) respond(tc *turnContext, turn *domain.Turn) {
	m.stampResponse(turn)
	m.speak(tc, turn)
}

func (m *Machine) stampResponse(turn *domain.Turn) {
	responded := time.Now()
	turn.Timestamps.Responded = &responded
	m.transition(domain.StatusResponding)
}

func (m *Machine) speak(tc *turnContext, turn *domain.Turn) {
	if tc.mode != domain.ModeVoice || tc.ctx.Err() != nil {
		return
	}
	m.transition(domain.StatusSpeaking)
	text := turn.ResponseText
	_, err := await(tc.ctx, "speech", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.gateway.Speak(ctx, text, m.opts.Voice)
	})
	switch {
	case err == nil:
		turn.Spoken = true
	case tc.ctx.Err() != nil:
		turn.SpeechInterrupted = true
	default:
		m.logger.Warn().Err(err).Str("turn_id", turn.ID).Msg("speech synthesis failed")
		if turn.Outcome == domain.OutcomeSuccess {
			turn.Outcome = domain.OutcomeSynthesisError
			turn.Error = err.Error()
		}
	}
}

func (m *Machine) finish(tc *turnContext, turn *domain.Turn, outcome domain.Outcome, text string, cause error) (*domain.Turn, error) {
	turn.Outcome = outcome
	turn.ResponseText = text
	return m.finalize(tc, turn, domain.NewTurnError(outcome, cause))
}

// finalize appends the turn to history, persists it and returns the
// session to idle.
func (m *Machine) finalize(tc *turnContext, turn *domain.Turn, turnErr *domain.TurnError) (*domain.Turn, error) {
	if turnErr != nil && turn.Error == "" {
		turn.Error = turnErr.Err.Error()
	}
	final := *turn

	m.mu.Lock()
	m.history = append(m.history, final)
	from := m.status
	m.mu.Unlock()

	failed := turnErr != nil && turnErr.Outcome != domain.OutcomeCancelled
	if failed {
		m.notify(from, domain.StatusError)
		from = domain.StatusError
	}

	m.mu.Lock()
	m.status = domain.StatusIdle
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	m.notify(from, domain.StatusIdle)

	if m.opts.Store != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(tc.from), persistTimeout)
		if err := m.opts.Store.AppendTurn(pctx, &final); err != nil {
			m.logger.Warn().Err(err).Str("turn_id", final.ID).Msg("failed to persist turn")
		}
		cancel()
	}

	tc.cancel()
	close(tc.done)

	m.logger.Info().
		Str("turn_id", final.ID).
		Str("agent_id", final.SelectedAgentID).
		Str("outcome", string(final.Outcome)).
		Bool("spoken", final.Spoken).
		Msg("turn finalized")

	if turnErr != nil {
		return &final, turnErr
	}
	return &final, nil
}

func (m *Machine) window() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.opts.HistoryWindow
	if n <= 0 {
		return nil
	}
	if n > len(m.history) {
		n = len(m.history)
	}
	return append([]domain.Turn(nil), m.history[len(m.history)-n:]...)
}

func (m *Machine) transition(to domain.Status) {
	m.mu.Lock()
	from := m.status
	m.status = to
	m.mu.Unlock()
	m.notify(from, to)
}

func (m *Machine) notify(from, to domain.Status) {
	if from == to {
		return
	}
	m.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("status changed")
	if m.opts.Observer != nil {
		m.opts.Observer(m.id, from, to)
	}
}

// await runs fn on its own goroutine and returns when it does or when ctx
// is done, whichever comes first. A panic in fn is returned as an error.
func await[T any](ctx context.Context, what string, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("%s panicked: %v", what, p)
			}
			ch <- r
		}()
		r.val, r.err = fn(ctx)
	}()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
