package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xiaot623/rica/internal/session"
)

// showStatus prints the configuration, agents and audio state. machine may
// be nil when no session is running.
func showStatus(ctx context.Context, out io.Writer, app *App, machine *session.Machine) error {
	fmt.Fprintln(out, "RICA - System Status")
	fmt.Fprintln(out, strings.Repeat("=", 40))

	status := "not started"
	if machine != nil {
		snap := machine.Snapshot()
		status = fmt.Sprintf("%s (%s mode, %d turns)", snap.Status, snap.Mode, snap.TurnCount)
	}
	cfg := app.Config
	fmt.Fprintf(out, "Status: %s\n", status)
	fmt.Fprintf(out, "OpenAI Model: %s\n", cfg.OpenAIModel)
	fmt.Fprintf(out, "Audio Sample Rate: %d\n", cfg.AudioSampleRate)
	fmt.Fprintf(out, "Host: %s\n", cfg.Host)
	fmt.Fprintf(out, "Port: %d\n", cfg.Port)
	if cfg.MockMode() {
		fmt.Fprintln(out, "Mode: MOCK")
	}

	descs := app.Agents.Descriptors()
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	fmt.Fprintf(out, "\nRegistered Agents: %s\n", strings.Join(ids, ", "))

	audio := app.Gateway.Status(ctx)
	voice := audio.VoiceID
	if voice == "" {
		voice = "default"
	}
	fmt.Fprintln(out, "\nAudio System:")
	fmt.Fprintf(out, "  Initialized: %t\n", audio.Open)
	fmt.Fprintf(out, "  Microphone: %s\n", audio.Microphone)
	fmt.Fprintf(out, "  Speaker: %s\n", audio.Speaker)
	fmt.Fprintf(out, "  Voice: %s (speed %.1f)\n", voice, audio.Speed)
	return nil
}

// testAudio opens the gateway, runs the self test and prints each result.
// A failing component is reported, not returned as an error.
func testAudio(ctx context.Context, out io.Writer, app *App) error {
	fmt.Fprintln(out, "Testing Audio System...")
	fmt.Fprintln(out, strings.Repeat("=", 30))

	if err := app.Gateway.Open(ctx); err != nil {
		fmt.Fprintf(out, "Error testing audio system: %v\n", err)
		return nil
	}
	defer app.Gateway.Close()

	res := app.Gateway.SelfTest(ctx)
	fmt.Fprintln(out, "\nTest Results:")
	for _, r := range []struct {
		name string
		ok   bool
	}{
		{"speech_to_text", res.SpeechToText},
		{"text_to_speech", res.TextToSpeech},
		{"audio_devices", res.AudioDevices},
		{"overall", res.Overall},
	} {
		mark := "✓ PASS"
		if !r.ok {
			mark = "✗ FAIL"
		}
		fmt.Fprintf(out, "  %s: %s\n", r.name, mark)
	}

	if res.Overall {
		fmt.Fprintln(out, "\nAll audio tests passed!")
	} else {
		fmt.Fprintln(out, "\nSome audio tests failed. Check the logs for details.")
	}
	return nil
}
