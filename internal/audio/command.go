package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// CommandRecorder captures audio with a sox compatible `rec` binary. Raw
// 16-bit PCM is read from stdout; recording stops on trailing silence or
// at the phrase limit.
type CommandRecorder struct {
	Command    string
	SampleRate int
	Channels   int
	ChunkSize  int
}

// CheckDevice reports whether the capture command is installed.
func (r *CommandRecorder) CheckDevice(ctx context.Context) error {
	if _, err := exec.LookPath(r.Command); err != nil {
		return fmt.Errorf("%w: %s not found", ErrDeviceUnavailable, r.Command)
	}
	return nil
}

// Record waits up to opts.Timeout for the first audio bytes and returns the
// phrase as a WAV clip.
func (r *CommandRecorder) Record(ctx context.Context, opts RecordOptions) (*Clip, error) {
	if err := r.CheckDevice(ctx); err != nil {
		return nil, err
	}
	limit := opts.PhraseLimit
	if limit <= 0 {
		limit = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := []string{
		"-q", "-t", "raw", "-b", "16", "-e", "signed-integer",
		"-r", strconv.Itoa(r.SampleRate), "-c", strconv.Itoa(r.Channels), "-",
		"silence", "1", "0.1", "1%", "1", "1.5", "1%",
		"trim", "0", strconv.FormatFloat(limit.Seconds(), 'f', 1, 64),
	}
	cmd := exec.CommandContext(ctx, r.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	chunk := r.ChunkSize
	if chunk <= 0 {
		chunk = 1024
	}
	started := make(chan struct{})
	done := make(chan error, 1)
	var pcm bytes.Buffer
	go func() {
		buf := make([]byte, chunk)
		first := true
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				pcm.Write(buf[:n])
				if first {
					first = false
					close(started)
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				done <- err
				return
			}
		}
	}()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-started:
	case err := <-done:
		_ = cmd.Wait()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return nil, ErrTimeoutExceeded
	case <-timeout:
		cancel()
		<-done
		_ = cmd.Wait()
		return nil, ErrTimeoutExceeded
	case <-ctx.Done():
		<-done
		_ = cmd.Wait()
		return nil, ctx.Err()
	}

	readErr := <-done
	waitErr := cmd.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, readErr)
	}
	if waitErr != nil && pcm.Len() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, waitErr)
	}
	return &Clip{Data: EncodeWAV(pcm.Bytes(), r.SampleRate, r.Channels), Format: "wav"}, nil
}

// CommandPlayer plays clips through a sox compatible `play` binary reading
// from stdin.
type CommandPlayer struct {
	Command string
}

// CheckDevice reports whether the playback command is installed.
func (p *CommandPlayer) CheckDevice(ctx context.Context) error {
	if _, err := exec.LookPath(p.Command); err != nil {
		return fmt.Errorf("%w: %s not found", ErrDeviceUnavailable, p.Command)
	}
	return nil
}

// Play blocks until playback finishes. Cancelling ctx kills the player.
func (p *CommandPlayer) Play(ctx context.Context, clip *Clip) error {
	if err := p.CheckDevice(ctx); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, p.Command, "-q", "-t", clip.Format, "-")
	cmd.Stdin = bytes.NewReader(clip.Data)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: playback failed: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// EncodeWAV wraps 16-bit little-endian PCM in a RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
