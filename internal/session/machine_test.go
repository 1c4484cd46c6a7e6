package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/rica/internal/agent"
	"github.com/xiaot623/rica/internal/audio"
	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/router"
	"github.com/xiaot623/rica/tests/helpers"
)

type fakeGateway struct {
	mu          sync.Mutex
	opens       int
	closes      int
	transcript  *audio.Transcription
	transcribe  error
	blockListen bool
	gotOpts     audio.TranscribeOptions
	spoken      []string
	speakErr    error
	blockSpeak  chan struct{}
	holdListen  chan struct{}
	holdOpen    chan struct{}
}

func (g *fakeGateway) Open(context.Context) error {
	g.mu.Lock()
	g.opens++
	hold := g.holdOpen
	g.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return nil
}

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
	return nil
}

func (g *fakeGateway) Transcribe(ctx context.Context, opts audio.TranscribeOptions) (*audio.Transcription, error) {
	g.mu.Lock()
	g.gotOpts = opts
	block := g.blockListen
	hold := g.holdListen
	g.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.transcribe != nil {
		return nil, g.transcribe
	}
	return g.transcript, nil
}

func (g *fakeGateway) TranscribeAudio(ctx context.Context, data []byte, format string) (*audio.Transcription, error) {
	if g.transcribe != nil {
		return nil, g.transcribe
	}
	return &audio.Transcription{Text: string(data), AudioRef: "audio_upload"}, nil
}

func (g *fakeGateway) Speak(ctx context.Context, text string, opts audio.SpeakOptions) error {
	if g.blockSpeak != nil {
		close(g.blockSpeak)
		<-ctx.Done()
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.speakErr != nil {
		return g.speakErr
	}
	g.spoken = append(g.spoken, text)
	return nil
}

func (g *fakeGateway) closeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closes
}

func (g *fakeGateway) openCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opens
}

func (g *fakeGateway) speakCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.spoken)
}

type transitions struct {
	mu  sync.Mutex
	log []string
}

func (tr *transitions) observe(_ string, from, to domain.Status) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.log = append(tr.log, string(from)+">"+string(to))
}

func (tr *transitions) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.log...)
}

func reply(text string) agent.Agent {
	return agent.Func(func(ctx context.Context, req agent.Request) (string, error) { return text, nil })
}

func waitForCancel(started chan<- struct{}) agent.Agent {
	return agent.Func(func(ctx context.Context, req agent.Request) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
}

type setup struct {
	general   agent.Agent
	functions agent.Agent
	noDefault bool
}

func newMachine(t *testing.T, gw *fakeGateway, s setup, opts Options) *Machine {
	t.Helper()
	if s.general == nil {
		s.general = reply("4")
	}
	if s.functions == nil {
		s.functions = reply("It is noon.")
	}
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(domain.AgentDescriptor{ID: "general", Kind: domain.AgentKindLLM, Capabilities: []string{domain.CapabilityGeneralChat}}, s.general))
	require.NoError(t, reg.Register(domain.AgentDescriptor{ID: "functions", Kind: domain.AgentKindFunction, Capabilities: []string{domain.CapabilityFunctionCall}, Priority: 10, Keywords: []string{"time"}}, s.functions))
	if !s.noDefault {
		require.NoError(t, reg.SetDefault("general"))
	}
	opts.Logger = zerolog.Nop()
	m := New(gw, router.New(reg, nil), reg, opts)
	require.NoError(t, m.Start(context.Background()))
	return m
}

func TestTextTurnSuccess(t *testing.T) {
	gw := &fakeGateway{}
	tr := &transitions{}
	m := newMachine(t, gw, setup{}, Options{Mode: domain.ModeText, Observer: tr.observe})

	turn, err := m.ProcessTextInput(context.Background(), "What's 2+2?")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, turn.Outcome)
	assert.Equal(t, "general", turn.SelectedAgentID)
	assert.Equal(t, "4", turn.ResponseText)
	assert.False(t, turn.Spoken)
	assert.NotNil(t, turn.Timestamps.Routed)
	assert.NotNil(t, turn.Timestamps.Responded)
	assert.Empty(t, turn.RawAudioRef)
	assert.Equal(t, 0, gw.speakCount(), "text mode never speaks")

	assert.Equal(t, domain.StatusIdle, m.Status())
	assert.Len(t, m.History(), 1)
	assert.Equal(t, "general", m.Snapshot().ActiveAgentHint)
	assert.Equal(t, []string{
		"uninitialized>idle", "idle>routing", "routing>executing", "executing>responding", "responding>idle",
	}, tr.get())
}

func TestEmptyTextRejected(t *testing.T) {
	tr := &transitions{}
	m := newMachine(t, &fakeGateway{}, setup{}, Options{Observer: tr.observe})

	_, err := m.ProcessTextInput(context.Background(), "   \n")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.StatusIdle, m.Status())
	assert.Equal(t, []string{"uninitialized>idle"}, tr.get())
	assert.Empty(t, m.History())
}

func TestSetModeAndInputRejectedDuringTurn(t *testing.T) {
	started := make(chan struct{})
	m := newMachine(t, &fakeGateway{}, setup{general: waitForCancel(started)}, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := m.ProcessTextInput(context.Background(), "hello")
		done <- err
	}()
	<-started

	assert.ErrorIs(t, m.SetMode(domain.ModeVoice), domain.ErrTurnInProgress)
	_, err := m.ProcessTextInput(context.Background(), "again")
	assert.ErrorIs(t, err, domain.ErrTurnInProgress)
	assert.ErrorIs(t, m.Start(context.Background()), domain.ErrAlreadyRunning)

	require.NoError(t, m.Cancel())
	assert.ErrorIs(t, <-done, domain.ErrCancelled)

	require.NoError(t, m.SetMode(domain.ModeVoice))
	assert.Equal(t, domain.ModeVoice, m.Mode())
	assert.ErrorIs(t, m.SetMode("telepathy"), domain.ErrInvalidMode)
}

func TestVoiceTurnSpeaks(t *testing.T) {
	gw := &fakeGateway{transcript: &audio.Transcription{Text: "what time is it", AudioRef: "audio_1"}}
	tr := &transitions{}
	m := newMachine(t, gw, setup{}, Options{
		Mode:               domain.ModeVoice,
		RecognitionTimeout: 5 * time.Second,
		PhraseLimit:        10 * time.Second,
		Observer:           tr.observe,
	})

	turn, err := m.ProcessVoiceInput(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "functions", turn.SelectedAgentID)
	assert.Equal(t, "what time is it", turn.InputText)
	assert.Equal(t, "audio_1", turn.RawAudioRef)
	assert.True(t, turn.Spoken)
	assert.Equal(t, []string{"It is noon."}, gw.spoken)
	assert.Equal(t, audio.TranscribeOptions{Timeout: 5 * time.Second, PhraseLimit: 10 * time.Second}, gw.gotOpts)
	assert.Equal(t, []string{
		"uninitialized>idle", "idle>listening", "listening>routing", "routing>executing",
		"executing>responding", "responding>speaking", "speaking>idle",
	}, tr.get())
}

func TestTranscriptionTimeout(t *testing.T) {
	gw := &fakeGateway{transcribe: audio.ErrTimeoutExceeded}
	tr := &transitions{}
	m := newMachine(t, gw, setup{}, Options{Mode: domain.ModeText, Observer: tr.observe})

	turn, err := m.ProcessVoiceInput(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTranscription))
	assert.True(t, errors.Is(err, audio.ErrTimeoutExceeded))
	var turnErr *domain.TurnError
	require.True(t, errors.As(err, &turnErr))
	assert.Equal(t, domain.OutcomeTranscriptionError, turnErr.Outcome)

	assert.Equal(t, domain.OutcomeTranscriptionError, turn.Outcome)
	assert.Equal(t, TranscriptionErrorText, turn.ResponseText)
	assert.Empty(t, turn.SelectedAgentID)
	assert.Equal(t, domain.StatusIdle, m.Status())
	log := tr.get()
	assert.Equal(t, "error>idle", log[len(log)-1])
}

func TestAgentErrorFallback(t *testing.T) {
	failing := agent.Func(func(ctx context.Context, req agent.Request) (string, error) {
		return "", errors.New("upstream 500")
	})
	gw := &fakeGateway{}
	m := newMachine(t, gw, setup{general: failing}, Options{Mode: domain.ModeVoice})

	turn, err := m.ProcessTextInput(context.Background(), "tell me a story")
	assert.ErrorIs(t, err, domain.ErrAgent)
	assert.Equal(t, domain.OutcomeAgentError, turn.Outcome)
	assert.Equal(t, AgentErrorText, turn.ResponseText)
	assert.Contains(t, turn.Error, "upstream 500")
	assert.Equal(t, []string{AgentErrorText}, gw.spoken, "fallback is spoken in voice mode")
	assert.Equal(t, domain.StatusIdle, m.Status())
}

func TestAgentTimeout(t *testing.T) {
	slow := agent.Func(func(ctx context.Context, req agent.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	m := newMachine(t, &fakeGateway{}, setup{general: slow}, Options{AgentTimeout: 20 * time.Millisecond})

	turn, err := m.ProcessTextInput(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrAgent)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.OutcomeAgentError, turn.Outcome)
}

func TestEmptyAgentResponseIsAnError(t *testing.T) {
	m := newMachine(t, &fakeGateway{}, setup{general: reply("  ")}, Options{})
	turn, err := m.ProcessTextInput(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrAgent)
	assert.Equal(t, AgentErrorText, turn.ResponseText)
}

func TestCancelWhileExecuting(t *testing.T) {
	started := make(chan struct{})
	gw := &fakeGateway{}
	m := newMachine(t, gw, setup{general: waitForCancel(started)}, Options{Mode: domain.ModeVoice})

	type result struct {
		turn *domain.Turn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		turn, err := m.ProcessTextInput(context.Background(), "hello")
		done <- result{turn, err}
	}()
	<-started
	require.NoError(t, m.Cancel())

	res := <-done
	assert.ErrorIs(t, res.err, domain.ErrCancelled)
	assert.Equal(t, domain.OutcomeCancelled, res.turn.Outcome)
	assert.Equal(t, CancelledText, res.turn.ResponseText)
	assert.Equal(t, 0, gw.speakCount(), "cancelled turns are not spoken")
	assert.Equal(t, domain.StatusIdle, m.Status())
}

func TestCancelWhileListening(t *testing.T) {
	gw := &fakeGateway{blockListen: true}
	m := newMachine(t, gw, setup{}, Options{Mode: domain.ModeVoice})

	done := make(chan error, 1)
	go func() {
		_, err := m.ProcessVoiceInput(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return m.Status() == domain.StatusListening }, time.Second, time.Millisecond)
	require.NoError(t, m.Cancel())
	assert.ErrorIs(t, <-done, domain.ErrCancelled)
	assert.Equal(t, domain.OutcomeCancelled, m.History()[0].Outcome)
}

func TestCancelWhileSpeaking(t *testing.T) {
	gw := &fakeGateway{
		transcript: &audio.Transcription{Text: "What's 2+2?"},
		blockSpeak: make(chan struct{}),
	}
	m := newMachine(t, gw, setup{}, Options{Mode: domain.ModeVoice})

	type result struct {
		turn *domain.Turn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		turn, err := m.ProcessVoiceInput(context.Background())
		done <- result{turn, err}
	}()
	<-gw.blockSpeak
	assert.Equal(t, domain.StatusSpeaking, m.Status())
	require.NoError(t, m.Cancel())

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, domain.OutcomeSuccess, res.turn.Outcome)
	assert.Equal(t, "4", res.turn.ResponseText)
	assert.True(t, res.turn.SpeechInterrupted)
	assert.False(t, res.turn.Spoken)
}

func TestSynthesisFailureKeepsText(t *testing.T) {
	gw := &fakeGateway{speakErr: audio.ErrNetwork}
	m := newMachine(t, gw, setup{}, Options{Mode: domain.ModeVoice})

	turn, err := m.ProcessTextInput(context.Background(), "What's 2+2?")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSynthesisError, turn.Outcome)
	assert.Equal(t, "4", turn.ResponseText)
	assert.Contains(t, turn.Error, "unreachable")
}

func TestRoutingFailure(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(domain.AgentDescriptor{ID: "weather", Capabilities: []string{"custom:weather"}}, reply("sunny")))
	m := New(&fakeGateway{}, router.New(reg, nil), reg, Options{Logger: zerolog.Nop()})
	require.NoError(t, m.Start(context.Background()))

	turn, err := m.ProcessTextInput(context.Background(), "What's 2+2?")
	assert.ErrorIs(t, err, domain.ErrRoutingFailure)
	assert.Equal(t, domain.OutcomeRoutingFailure, turn.Outcome)
	assert.Equal(t, RoutingFailureText, turn.ResponseText)
	assert.Nil(t, turn.Timestamps.Routed)
}

func TestAudioInput(t *testing.T) {
	m := newMachine(t, &fakeGateway{}, setup{}, Options{Mode: domain.ModeText})
	turn, err := m.ProcessAudioInput(context.Background(), []byte("what time is it"), "wav")
	require.NoError(t, err)
	assert.Equal(t, "functions", turn.SelectedAgentID)
	assert.Equal(t, "audio_upload", turn.RawAudioRef)
}

func TestLifecycle(t *testing.T) {
	gw := &fakeGateway{}
	reg := agent.NewRegistry()
	m := New(gw, router.New(reg, nil), reg, Options{Logger: zerolog.Nop()})
	assert.Equal(t, domain.StatusUninitialized, m.Status())

	_, err := m.ProcessTextInput(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrNotRunning)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 1, gw.opens)

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, domain.StatusStopped, m.Status())
	assert.Equal(t, 1, gw.closes)

	assert.ErrorIs(t, m.Start(context.Background()), domain.ErrNotRunning)
	assert.ErrorIs(t, m.Stop(context.Background()), domain.ErrNotRunning)
	assert.ErrorIs(t, m.SetMode(domain.ModeVoice), domain.ErrNotRunning)
	_, err = m.ProcessTextInput(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestStopCancelsInFlightTurn(t *testing.T) {
	started := make(chan struct{})
	m := newMachine(t, &fakeGateway{}, setup{general: waitForCancel(started)}, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := m.ProcessTextInput(context.Background(), "hello")
		done <- err
	}()
	<-started
	require.NoError(t, m.Stop(context.Background()))
	assert.ErrorIs(t, <-done, domain.ErrCancelled)
	assert.Equal(t, domain.StatusStopped, m.Status())
	assert.Len(t, m.History(), 1)
}

func TestHistoryWindow(t *testing.T) {
	var seen []int
	counting := agent.Func(func(ctx context.Context, req agent.Request) (string, error) {
		seen = append(seen, len(req.History))
		return "ok", nil
	})
	m := newMachine(t, &fakeGateway{}, setup{general: counting}, Options{HistoryWindow: 2})

	for i := 0; i < 4; i++ {
		_, err := m.ProcessTextInput(context.Background(), "hello")
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 1, 2, 2}, seen)

	history := m.History()
	history[0].ResponseText = "mutated"
	assert.Equal(t, "ok", m.History()[0].ResponseText)
	assert.Equal(t, 4, m.History()[3].Seq)
}

func TestTurnsArePersisted(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	m := newMachine(t, &fakeGateway{}, setup{}, Options{Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.ProcessTextInput(ctx, "What's 2+2?")
	require.NoError(t, err)
	cancel()

	turns, err := store.ListTurns(context.Background(), m.ID(), 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "4", turns[0].ResponseText)

	require.NoError(t, m.Stop(context.Background()))
	rec, err := store.GetSession(context.Background(), m.ID())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotNil(t, rec.StoppedAt)
}

func TestAgentPanicBecomesAgentError(t *testing.T) {
	calls := 0
	flaky := agent.Func(func(ctx context.Context, req agent.Request) (string, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return "fine now", nil
	})
	gw := &fakeGateway{}
	m := newMachine(t, gw, setup{general: flaky}, Options{Mode: domain.ModeVoice})

	turn, err := m.ProcessTextInput(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrAgent)
	require.NotNil(t, turn)
	assert.Equal(t, domain.OutcomeAgentError, turn.Outcome)
	assert.Equal(t, AgentErrorText, turn.ResponseText)
	assert.Contains(t, turn.Error, "panicked: boom")
	assert.Equal(t, []string{AgentErrorText}, gw.spoken)
	assert.Equal(t, domain.StatusIdle, m.Status())

	turn, err = m.ProcessTextInput(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Equal(t, "fine now", turn.ResponseText)
	assert.Len(t, m.History(), 2)
}

func TestCancelDoesNotWaitForAgentIgnoringContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stubborn := agent.Func(func(ctx context.Context, req agent.Request) (string, error) {
		close(started)
		<-release
		return "too late", nil
	})
	m := newMachine(t, &fakeGateway{}, setup{general: stubborn}, Options{})

	done := make(chan *domain.Turn, 1)
	go func() {
		turn, _ := m.ProcessTextInput(context.Background(), "hello")
		done <- turn
	}()
	<-started
	require.NoError(t, m.Cancel())

	select {
	case turn := <-done:
		assert.Equal(t, domain.OutcomeCancelled, turn.Outcome)
		assert.Equal(t, CancelledText, turn.ResponseText)
	case <-time.After(time.Second):
		t.Fatalf("turn did not finalize after cancel")
	}
	assert.Equal(t, domain.StatusIdle, m.Status())
}

func TestAgentTimeoutIgnoredByAgent(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stubborn := agent.Func(func(ctx context.Context, req agent.Request) (string, error) {
		<-release
		return "too late", nil
	})
	m := newMachine(t, &fakeGateway{}, setup{general: stubborn}, Options{AgentTimeout: 20 * time.Millisecond})

	turn, err := m.ProcessTextInput(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrAgent)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, AgentErrorText, turn.ResponseText)
}

func TestCancelDoesNotWaitForStuckTranscription(t *testing.T) {
	gw := &fakeGateway{holdListen: make(chan struct{}), transcript: &audio.Transcription{Text: "hello"}}
	t.Cleanup(func() { close(gw.holdListen) })
	m := newMachine(t, gw, setup{}, Options{Mode: domain.ModeVoice})

	done := make(chan error, 1)
	go func() {
		_, err := m.ProcessVoiceInput(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return m.Status() == domain.StatusListening }, time.Second, time.Millisecond)
	require.NoError(t, m.Cancel())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatalf("turn did not finalize after cancel")
	}
	assert.Equal(t, 0, gw.speakCount())
}

func TestTranscriptionFailureIsNotSpoken(t *testing.T) {
	gw := &fakeGateway{transcribe: audio.ErrUnintelligible}
	m := newMachine(t, gw, setup{}, Options{Mode: domain.ModeVoice})

	turn, err := m.ProcessVoiceInput(context.Background())
	assert.ErrorIs(t, err, domain.ErrTranscription)
	assert.Equal(t, TranscriptionErrorText, turn.ResponseText)
	assert.NotNil(t, turn.Timestamps.Responded)
	assert.False(t, turn.Spoken)
	assert.Equal(t, 0, gw.speakCount())
}

func TestStopTimeoutFinishesTeardownLater(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	gw := &fakeGateway{}
	m := newMachine(t, gw, setup{general: waitForCancel(started)}, Options{
		Observer: func(_ string, from, to domain.Status) {
			if from == domain.StatusExecuting && to == domain.StatusIdle {
				<-gate
			}
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.ProcessTextInput(context.Background(), "hello")
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Stop(ctx), context.DeadlineExceeded)
	assert.ErrorIs(t, m.Stop(context.Background()), domain.ErrNotRunning)

	close(gate)
	assert.ErrorIs(t, <-done, domain.ErrCancelled)
	require.Eventually(t, func() bool { return m.Status() == domain.StatusStopped }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return gw.closeCount() == 1 }, time.Second, time.Millisecond)
}

func TestStartDoesNotHoldLockWhileOpening(t *testing.T) {
	gw := &fakeGateway{holdOpen: make(chan struct{})}
	reg := agent.NewRegistry()
	m := New(gw, router.New(reg, nil), reg, Options{Logger: zerolog.Nop()})

	startErr := make(chan error, 1)
	go func() { startErr <- m.Start(context.Background()) }()
	require.Eventually(t, func() bool { return gw.openCount() == 1 }, time.Second, time.Millisecond)

	status := make(chan domain.Status, 1)
	go func() { status <- m.Snapshot().Status }()
	select {
	case s := <-status:
		assert.Equal(t, domain.StatusUninitialized, s)
	case <-time.After(time.Second):
		t.Fatalf("snapshot blocked while the gateway was opening")
	}
	assert.ErrorIs(t, m.Start(context.Background()), domain.ErrAlreadyRunning)

	close(gw.holdOpen)
	require.NoError(t, <-startErr)
	assert.Equal(t, domain.StatusIdle, m.Status())
	assert.Equal(t, 1, gw.openCount())
}

func TestReusedSessionIDContinuesHistory(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	first := newMachine(t, &fakeGateway{}, setup{}, Options{ID: "default", Store: store})
	_, err := first.ProcessTextInput(ctx, "first run question")
	require.NoError(t, err)
	require.NoError(t, first.Stop(ctx))

	second := newMachine(t, &fakeGateway{}, setup{}, Options{ID: "default", Store: store})
	turn, err := second.ProcessTextInput(ctx, "second run question")
	require.NoError(t, err)
	assert.Equal(t, 2, turn.Seq)

	turns, err := store.ListTurns(ctx, "default", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first run question", turns[0].InputText)
	assert.Equal(t, 1, turns[0].Seq)
	assert.Equal(t, "second run question", turns[1].InputText)
	assert.Equal(t, 2, turns[1].Seq)

	rec, err := store.GetSession(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.StoppedAt)
}
