package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	got RecordOptions
	err error
}

func (f *fakeRecorder) Record(ctx context.Context, opts RecordOptions) (*Clip, error) {
	f.got = opts
	if f.err != nil {
		return nil, f.err
	}
	return &Clip{Data: []byte("pcm"), Format: "wav"}, nil
}

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, clip *Clip) (string, error) {
	return f.text, f.err
}

type fakeSynth struct {
	got SpeakOptions
	err error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, opts SpeakOptions) (*Clip, error) {
	f.got = opts
	if f.err != nil {
		return nil, f.err
	}
	return &Clip{Data: []byte(text), Format: "wav"}, nil
}

type blockingPlayer struct{ started chan struct{} }

func (p *blockingPlayer) Play(ctx context.Context, clip *Clip) error {
	close(p.started)
	<-ctx.Done()
	return ctx.Err()
}

type unavailablePlayer struct{}

func (unavailablePlayer) Play(ctx context.Context, clip *Clip) error { return ErrDeviceUnavailable }
func (unavailablePlayer) CheckDevice(ctx context.Context) error    { return ErrDeviceUnavailable }

func openGateway(t *testing.T, engines Engines) *Gateway {
	t.Helper()
	g := NewGateway(engines, Options{SampleRate: 16000, Channels: 1, VoiceID: "nova"}, zerolog.Nop())
	require.NoError(t, g.Open(context.Background()))
	return g
}

func TestTranscribePassesBounds(t *testing.T) {
	rec := &fakeRecorder{}
	g := openGateway(t, Engines{Recorder: rec, Recognizer: &fakeRecognizer{text: "  hello  "}})

	tr, err := g.Transcribe(context.Background(), TranscribeOptions{Timeout: 5 * time.Second, PhraseLimit: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "hello", tr.Text)
	assert.NotEmpty(t, tr.AudioRef)
	assert.Equal(t, 5*time.Second, rec.got.Timeout)
	assert.Equal(t, 10*time.Second, rec.got.PhraseLimit)
}

func TestTranscribeErrors(t *testing.T) {
	g := openGateway(t, Engines{Recorder: &fakeRecorder{err: ErrTimeoutExceeded}, Recognizer: &fakeRecognizer{}})
	_, err := g.Transcribe(context.Background(), TranscribeOptions{})
	assert.ErrorIs(t, err, ErrTimeoutExceeded)

	g = openGateway(t, Engines{Recorder: &fakeRecorder{}, Recognizer: &fakeRecognizer{text: ""}})
	_, err = g.Transcribe(context.Background(), TranscribeOptions{})
	assert.ErrorIs(t, err, ErrUnintelligible)

	g = openGateway(t, Engines{Recognizer: &fakeRecognizer{text: "x"}})
	_, err = g.Transcribe(context.Background(), TranscribeOptions{})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	_, err = g.TranscribeAudio(context.Background(), nil, "wav")
	assert.ErrorIs(t, err, ErrUnintelligible)

	require.NoError(t, g.Close())
	_, err = g.TranscribeAudio(context.Background(), []byte("x"), "wav")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSpeakDefaultsAndValidation(t *testing.T) {
	synth := &fakeSynth{}
	g := openGateway(t, Engines{Synthesizer: synth, Player: MockEngines("").Player})

	require.NoError(t, g.Speak(context.Background(), "hi", SpeakOptions{}))
	assert.Equal(t, "nova", synth.got.VoiceID)
	assert.Equal(t, 1.0, synth.got.Speed)

	require.NoError(t, g.Speak(context.Background(), "hi", SpeakOptions{VoiceID: "echo", Speed: 2}))
	assert.Equal(t, "echo", synth.got.VoiceID)

	assert.ErrorIs(t, g.Speak(context.Background(), "hi", SpeakOptions{Speed: 3.5}), ErrInvalidSpeed)
	assert.ErrorIs(t, g.SetSpeed(0.05), ErrInvalidSpeed)
	require.NoError(t, g.SetSpeed(1.5))
	g.SetVoice("onyx")
	require.NoError(t, g.Speak(context.Background(), "hi", SpeakOptions{}))
	assert.Equal(t, 1.5, synth.got.Speed)
	assert.Equal(t, "onyx", synth.got.VoiceID)
}

func TestSpeakSynthesisError(t *testing.T) {
	g := openGateway(t, Engines{Synthesizer: &fakeSynth{err: ErrNetwork}, Player: MockEngines("").Player})
	assert.ErrorIs(t, g.Speak(context.Background(), "hi", SpeakOptions{}), ErrNetwork)
}

func TestSpeakCancelAbortsPlayback(t *testing.T) {
	player := &blockingPlayer{started: make(chan struct{})}
	g := openGateway(t, Engines{Synthesizer: &fakeSynth{}, Player: player})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- g.Speak(ctx, "a long answer", SpeakOptions{}) }()

	<-player.started
	cancel()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("speak did not return after cancel")
	}
}

func TestStatusAndSelfTest(t *testing.T) {
	g := openGateway(t, MockEngines("Audio system test successful"))
	st := g.Status(context.Background())
	assert.True(t, st.Open)
	assert.Equal(t, "available", st.Microphone)
	assert.Equal(t, 16000, st.SampleRate)

	res := g.SelfTest(context.Background())
	assert.Equal(t, SelfTestResult{SpeechToText: true, TextToSpeech: true, AudioDevices: true, Overall: true}, res)

	engines := MockEngines("x")
	engines.Player = unavailablePlayer{}
	g = openGateway(t, engines)
	assert.Equal(t, "unavailable", g.Status(context.Background()).Speaker)
	res = g.SelfTest(context.Background())
	assert.False(t, res.AudioDevices)
	assert.False(t, res.Overall)
}
