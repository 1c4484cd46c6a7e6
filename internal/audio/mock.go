package audio

import (
	"context"
	"time"
)

// MockEngines returns engines that need no devices or network. The
// recognizer always hears phrase.
func MockEngines(phrase string) Engines {
	return Engines{
		Recorder:    mockRecorder{},
		Recognizer:  mockRecognizer{phrase: phrase},
		Synthesizer: mockSynthesizer{},
		Player:      mockPlayer{},
	}
}

type mockRecorder struct{}

func (mockRecorder) Record(ctx context.Context, opts RecordOptions) (*Clip, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return &Clip{Data: EncodeWAV(make([]byte, 320), 16000, 1), Format: "wav"}, nil
}

type mockRecognizer struct{ phrase string }

func (m mockRecognizer) Recognize(ctx context.Context, clip *Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.phrase, nil
}

type mockSynthesizer struct{}

func (mockSynthesizer) Synthesize(ctx context.Context, text string, opts SpeakOptions) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Clip{Data: EncodeWAV([]byte(text), 16000, 1), Format: "wav"}, nil
}

type mockPlayer struct{}

func (mockPlayer) Play(ctx context.Context, clip *Clip) error {
	return ctx.Err()
}
