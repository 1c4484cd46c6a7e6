package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/rica/internal/transport/ws"
)

type connectOptions struct {
	addr      string
	sessionID string
	mode      string
}

func newConnectCommand() *cobra.Command {
	opts := &connectOptions{}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Chat with a running rica serve over WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runConnect(ctx, cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "ws://127.0.0.1:8000/ws", "WebSocket server address")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Session id to open (generated when empty)")
	cmd.Flags().StringVar(&opts.mode, "mode", "text", "Session mode (text or voice)")
	return cmd
}

func runConnect(ctx context.Context, cmd *cobra.Command, opts *connectOptions) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connecting to %s...\n", opts.addr)

	client, err := ws.Dial(ctx, opts.addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	ack, err := client.Hello(ctx, opts.sessionID, opts.mode)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session established: %s (%s mode)\n", ack.SessionID, ack.Mode)
	fmt.Fprintln(out, "Type a message and press Enter to send.")
	fmt.Fprintln(out, "Commands: /mode <text|voice>, /quit to exit")
	fmt.Fprintln(out)

	c := &console{in: cmd.InOrStdin(), out: out, prompt: IsTTY(cmd.InOrStdin())}
	for {
		line, ok := c.readLine(ctx, "> ")
		if !ok || line == "/quit" || isQuit(line) {
			fmt.Fprintln(out, "Bye!")
			return nil
		}
		switch {
		case line == "":
		case strings.HasPrefix(line, "/mode "):
			mode := strings.TrimSpace(strings.TrimPrefix(line, "/mode "))
			if err := client.SetMode(ctx, mode); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Mode set to %s.\n", mode)
		default:
			turn, err := client.Text(ctx, line)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "RICA: %s\n\n", turn.Response)
		}
	}
}
