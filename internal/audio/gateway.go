package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Speech speed bounds accepted by Speak.
const (
	MinSpeed = 0.1
	MaxSpeed = 3.0
)

// SelfTestPhrase is spoken by SelfTest.
const SelfTestPhrase = "Audio system test successful"

// TranscribeOptions bounds a microphone transcription.
type TranscribeOptions struct {
	Timeout     time.Duration
	PhraseLimit time.Duration
}

// SpeakOptions selects the voice. Zero values fall back to the gateway
// settings.
type SpeakOptions struct {
	VoiceID string
	Speed   float64
}

// Transcription is the text recognized from one phrase.
type Transcription struct {
	Text     string
	AudioRef string
}

// Options configures a Gateway.
type Options struct {
	SampleRate int
	Channels   int
	VoiceID    string
	Speed      float64
	// AudioDir, when set, receives a copy of every captured clip named
	// after its reference.
	AudioDir string
}

// Status describes the gateway and its devices.
type Status struct {
	Open       bool    `json:"open"`
	Microphone string  `json:"microphone"`
	Speaker    string  `json:"speaker"`
	VoiceID    string  `json:"voice_id,omitempty"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

// SelfTestResult reports which parts of the audio stack work.
type SelfTestResult struct {
	SpeechToText bool `json:"speech_to_text"`
	TextToSpeech bool `json:"text_to_speech"`
	AudioDevices bool `json:"audio_devices"`
	Overall      bool `json:"overall"`
}

// Gateway is the single entry point for speech input and output. It does
// not retry; callers decide what to do with failures.
type Gateway struct {
	engines Engines
	opts    Options
	logger  zerolog.Logger

	mu      sync.RWMutex
	open    bool
	voiceID string
	speed   float64
}

// NewGateway creates a closed gateway.
func NewGateway(engines Engines, opts Options, logger zerolog.Logger) *Gateway {
	speed := opts.Speed
	if speed == 0 {
		speed = 1.0
	}
	return &Gateway{
		engines: engines,
		opts:    opts,
		logger:  logger.With().Str("component", "audio").Logger(),
		voiceID: opts.VoiceID,
		speed:   speed,
	}
}

// Open makes the gateway usable. Missing devices are reported in Status
// and surface as ErrDeviceUnavailable on use, not here.
func (g *Gateway) Open(ctx context.Context) error {
	g.mu.Lock()
	g.open = true
	g.mu.Unlock()

	if err := checkDevice(ctx, g.engines.Recorder); err != nil {
		g.logger.Warn().Err(err).Msg("microphone not available")
	}
	if err := checkDevice(ctx, g.engines.Player); err != nil {
		g.logger.Warn().Err(err).Msg("speaker not available")
	}
	return nil
}

// Close releases the gateway. Later calls fail with ErrClosed.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
	return nil
}

// SetVoice changes the default voice.
func (g *Gateway) SetVoice(voiceID string) {
	g.mu.Lock()
	g.voiceID = voiceID
	g.mu.Unlock()
}

// SetSpeed changes the default speech speed.
func (g *Gateway) SetSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	g.mu.Lock()
	g.speed = speed
	g.mu.Unlock()
	return nil
}

// Transcribe captures one phrase from the microphone and recognizes it.
// Capture waits at most opts.Timeout for speech and records at most
// opts.PhraseLimit.
func (g *Gateway) Transcribe(ctx context.Context, opts TranscribeOptions) (*Transcription, error) {
	if err := g.ensureOpen(); err != nil {
		return nil, err
	}
	if g.engines.Recorder == nil {
		return nil, fmt.Errorf("%w: no recorder configured", ErrDeviceUnavailable)
	}

	clip, err := g.engines.Recorder.Record(ctx, RecordOptions{Timeout: opts.Timeout, PhraseLimit: opts.PhraseLimit})
	if err != nil {
		return nil, err
	}
	return g.recognize(ctx, clip)
}

// TranscribeAudio recognizes caller supplied audio.
func (g *Gateway) TranscribeAudio(ctx context.Context, data []byte, format string) (*Transcription, error) {
	if err := g.ensureOpen(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrUnintelligible
	}
	if format == "" {
		format = "wav"
	}
	return g.recognize(ctx, &Clip{Data: data, Format: strings.ToLower(format)})
}

func (g *Gateway) recognize(ctx context.Context, clip *Clip) (*Transcription, error) {
	if g.engines.Recognizer == nil {
		return nil, fmt.Errorf("%w: no recognizer configured", ErrNetwork)
	}
	ref := "audio_" + uuid.New().String()[:8]
	g.keepClip(ref, clip)

	text, err := g.engines.Recognizer.Recognize(ctx, clip)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrUnintelligible
	}
	g.logger.Debug().Str("audio_ref", ref).Int("bytes", len(clip.Data)).Msg("speech recognized")
	return &Transcription{Text: text, AudioRef: ref}, nil
}

func (g *Gateway) keepClip(ref string, clip *Clip) {
	if g.opts.AudioDir == "" {
		return
	}
	path := filepath.Join(g.opts.AudioDir, ref+"."+clip.Format)
	if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
		g.logger.Warn().Err(err).Str("path", path).Msg("failed to keep captured audio")
	}
}

// Speak synthesizes text and plays it. Cancelling ctx aborts playback.
func (g *Gateway) Speak(ctx context.Context, text string, opts SpeakOptions) error {
	if err := g.ensureOpen(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	g.mu.RLock()
	if opts.VoiceID == "" {
		opts.VoiceID = g.voiceID
	}
	if opts.Speed == 0 {
		opts.Speed = g.speed
	}
	g.mu.RUnlock()
	if opts.Speed < MinSpeed || opts.Speed > MaxSpeed {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, opts.Speed)
	}

	if g.engines.Synthesizer == nil {
		return fmt.Errorf("%w: no synthesizer configured", ErrNetwork)
	}
	if g.engines.Player == nil {
		return fmt.Errorf("%w: no player configured", ErrDeviceUnavailable)
	}

	clip, err := g.engines.Synthesizer.Synthesize(ctx, text, opts)
	if err != nil {
		return err
	}
	return g.engines.Player.Play(ctx, clip)
}

// Status reports the gateway state and device availability.
func (g *Gateway) Status(ctx context.Context) Status {
	g.mu.RLock()
	st := Status{
		Open:       g.open,
		VoiceID:    g.voiceID,
		Speed:      g.speed,
		SampleRate: g.opts.SampleRate,
		Channels:   g.opts.Channels,
	}
	g.mu.RUnlock()
	st.Microphone = deviceState(ctx, g.engines.Recorder)
	st.Speaker = deviceState(ctx, g.engines.Player)
	return st
}

// SelfTest checks the devices and speaks SelfTestPhrase. Recognition is
// exercised on the synthesized phrase so no microphone input is needed.
func (g *Gateway) SelfTest(ctx context.Context) SelfTestResult {
	var res SelfTestResult
	res.AudioDevices = checkDevice(ctx, g.engines.Recorder) == nil && checkDevice(ctx, g.engines.Player) == nil

	if err := g.ensureOpen(); err != nil {
		return res
	}
	if g.engines.Synthesizer != nil {
		clip, err := g.engines.Synthesizer.Synthesize(ctx, SelfTestPhrase, SpeakOptions{VoiceID: g.voiceID, Speed: g.speed})
		if err != nil {
			g.logger.Warn().Err(err).Msg("self test: synthesis failed")
		} else {
			res.TextToSpeech = true
			if g.engines.Player != nil {
				if err := g.engines.Player.Play(ctx, clip); err != nil {
					g.logger.Warn().Err(err).Msg("self test: playback failed")
					res.TextToSpeech = false
				}
			}
			if g.engines.Recognizer != nil {
				if _, err := g.engines.Recognizer.Recognize(ctx, clip); err != nil {
					g.logger.Warn().Err(err).Msg("self test: recognition failed")
				} else {
					res.SpeechToText = true
				}
			}
		}
	}
	res.Overall = res.SpeechToText && res.TextToSpeech && res.AudioDevices
	return res
}

func (g *Gateway) ensureOpen() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.open {
		return ErrClosed
	}
	return nil
}

func checkDevice(ctx context.Context, engine any) error {
	if engine == nil {
		return ErrDeviceUnavailable
	}
	if dc, ok := engine.(DeviceChecker); ok {
		return dc.CheckDevice(ctx)
	}
	return nil
}

func deviceState(ctx context.Context, engine any) string {
	err := checkDevice(ctx, engine)
	switch {
	case err == nil:
		return "available"
	case errors.Is(err, ErrDeviceUnavailable):
		return "unavailable"
	}
	return "error: " + err.Error()
}
