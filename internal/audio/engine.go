// Package audio converts between speech and text. The Gateway facade hides
// which capture, recognition, synthesis and playback engines are in use.
package audio

import (
	"context"
	"time"
)

// Clip is a piece of encoded audio.
type Clip struct {
	Data   []byte
	Format string // wav, mp3, ...
}

// RecordOptions bounds a microphone capture.
type RecordOptions struct {
	// Timeout is how long to wait for speech to start.
	Timeout time.Duration
	// PhraseLimit caps the length of the captured phrase.
	PhraseLimit time.Duration
}

// Recorder captures a single phrase from the microphone.
type Recorder interface {
	Record(ctx context.Context, opts RecordOptions) (*Clip, error)
}

// Recognizer turns audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, clip *Clip) (string, error)
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SpeakOptions) (*Clip, error)
}

// Player plays audio on the speaker and returns when playback ends or ctx
// is cancelled.
type Player interface {
	Play(ctx context.Context, clip *Clip) error
}

// DeviceChecker is implemented by engines bound to a local device.
type DeviceChecker interface {
	CheckDevice(ctx context.Context) error
}

// Engines groups the gateway collaborators.
type Engines struct {
	Recorder    Recorder
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Player      Player
}
