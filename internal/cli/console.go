package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xiaot623/rica/internal/audio"
	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/session"
)

// console runs the terminal loops over a single session.
type console struct {
	in      io.Reader
	out     io.Writer
	prompt  bool
	app     *App
	machine *session.Machine

	lines <-chan string
}

func isQuit(s string) bool {
	switch strings.ToLower(s) {
	case "quit", "exit", "bye":
		return true
	}
	return false
}

// readLine returns the next trimmed line. ok is false at EOF or when ctx
// is done.
func (c *console) readLine(ctx context.Context, prompt string) (string, bool) {
	if c.lines == nil {
		ch := make(chan string)
		go func() {
			defer close(ch)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				ch <- scanner.Text()
			}
		}()
		c.lines = ch
	}
	if c.prompt {
		fmt.Fprint(c.out, prompt)
	}
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-c.lines:
		return strings.TrimSpace(line), ok
	}
}

func (c *console) runText(ctx context.Context) error {
	fmt.Fprintln(c.out, "RICA - Text Mode")
	fmt.Fprintln(c.out, strings.Repeat("=", 30))
	fmt.Fprintln(c.out, "Type 'quit' to exit")
	fmt.Fprintln(c.out)

	for {
		line, ok := c.readLine(ctx, "You: ")
		if !ok || isQuit(line) {
			return nil
		}
		if line == "" {
			continue
		}
		c.textTurn(ctx, line)
	}
}

func (c *console) runVoice(ctx context.Context) error {
	fmt.Fprintln(c.out, "RICA - Voice Mode")
	fmt.Fprintln(c.out, strings.Repeat("=", 30))
	fmt.Fprintln(c.out, "Press Ctrl+C to exit")
	fmt.Fprintln(c.out)

	for ctx.Err() == nil {
		if _, err := c.voiceTurn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *console) runInteractive(ctx context.Context) error {
	fmt.Fprintln(c.out, "RICA - Interactive Mode")
	fmt.Fprintln(c.out, strings.Repeat("=", 35))
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  'voice'  - Switch to voice input")
	fmt.Fprintln(c.out, "  'text'   - Switch to text input")
	fmt.Fprintln(c.out, "  'status' - Show system status")
	fmt.Fprintln(c.out, "  'quit'   - Exit")
	fmt.Fprintln(c.out)

	for ctx.Err() == nil {
		if c.machine.Mode() == domain.ModeVoice {
			turn, err := c.voiceTurn(ctx)
			if err != nil {
				return err
			}
			if turn != nil && strings.EqualFold(strings.Trim(turn.InputText, " .!"), "text") {
				c.switchMode(domain.ModeText, "Switched to text mode.")
			}
			continue
		}

		line, ok := c.readLine(ctx, "You: ")
		if !ok || isQuit(line) {
			return nil
		}
		switch strings.ToLower(line) {
		case "":
		case "voice":
			c.switchMode(domain.ModeVoice, "Switched to voice mode. Say 'text' to switch back.")
		case "text":
			fmt.Fprintln(c.out, "Already in text mode.")
		case "status":
			if err := showStatus(ctx, c.out, c.app, c.machine); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		default:
			c.textTurn(ctx, line)
		}
	}
	return nil
}

func (c *console) switchMode(mode domain.Mode, msg string) {
	if err := c.machine.SetMode(mode); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, msg)
}

func (c *console) textTurn(ctx context.Context, line string) {
	turn, err := c.machine.ProcessTextInput(ctx, line)
	if turn == nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "RICA: %s\n\n", turn.ResponseText)
}

// voiceTurn listens for one phrase. A missing microphone ends the loop.
func (c *console) voiceTurn(ctx context.Context) (*domain.Turn, error) {
	fmt.Fprintln(c.out, "Listening... (speak now)")
	turn, err := c.machine.ProcessVoiceInput(ctx)
	if errors.Is(err, audio.ErrDeviceUnavailable) {
		return nil, fmt.Errorf("voice input unavailable: %w", err)
	}
	if turn == nil {
		if ctx.Err() == nil {
			fmt.Fprintf(c.out, "Voice processing error: %v\n", err)
		}
		return nil, nil
	}
	if turn.InputText != "" {
		fmt.Fprintf(c.out, "You said: %s\n", turn.InputText)
	}
	fmt.Fprintf(c.out, "Response: %s\n", turn.ResponseText)
	fmt.Fprintln(c.out, strings.Repeat("-", 30))
	return turn, nil
}
