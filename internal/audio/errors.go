package audio

import "errors"

var (
	// ErrDeviceUnavailable means the microphone or speaker cannot be used.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrNetwork means a remote recognition or synthesis service failed.
	ErrNetwork = errors.New("audio service unreachable")
	// ErrTimeoutExceeded means no speech was captured in time.
	ErrTimeoutExceeded = errors.New("no speech detected before timeout")
	// ErrUnintelligible means audio was captured but produced no text.
	ErrUnintelligible = errors.New("speech was not understood")
	// ErrClosed is returned by a gateway that is not open.
	ErrClosed = errors.New("audio gateway closed")
	// ErrInvalidSpeed is returned for speeds outside MinSpeed..MaxSpeed.
	ErrInvalidSpeed = errors.New("speech speed out of range")
)
