// Package cli defines the Cobra commands for the rica binary.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaot623/rica/internal/config"
	"github.com/xiaot623/rica/internal/domain"
)

var version = "0.1.0" // set via ldflags at build time

type rootOptions struct {
	voice      bool
	text       bool
	status     bool
	testAudio  bool
	configPath string
	host       string
	port       int
	debug      bool
	logLevel   string
}

// NewRootCommand builds the rica command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "rica",
		Short: "RICA - Rather Intelligent Conversational Assistant",
		Long: `RICA is a voice and text assistant that routes each request to the
agent best suited to answer it.`,
		Example: `  rica                      # Start interactive mode
  rica --voice              # Start voice-only mode
  rica --text               # Start text-only mode
  rica --config config.env  # Use custom config file
  rica --status             # Show system status
  rica serve                # Serve the REST and WebSocket API
  rica connect              # Chat with a running server`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.voice, "voice", false, "Enable voice input/output mode")
	flags.BoolVar(&opts.text, "text", false, "Enable text-only mode")
	flags.BoolVar(&opts.status, "status", false, "Show system status and exit")
	flags.BoolVar(&opts.testAudio, "test-audio", false, "Test audio system components")
	cmd.MarkFlagsMutuallyExclusive("voice", "text")

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	persistent.StringVar(&opts.host, "host", "127.0.0.1", "Host for API server")
	persistent.IntVar(&opts.port, "port", 8000, "Port for API server")
	persistent.BoolVar(&opts.debug, "debug", false, "Enable debug mode")
	persistent.StringVar(&opts.logLevel, "log-level", "INFO", "Set logging level (DEBUG, INFO, WARNING, ERROR)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newConnectCommand())
	return cmd
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies flags the user set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToUpper(opts.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runRoot(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	switch {
	case opts.status:
		return showStatus(ctx, out, app, nil)
	case opts.testAudio:
		return testAudio(ctx, out, app)
	}

	mode := domain.ModeText
	if opts.voice {
		mode = domain.ModeVoice
	}
	machine := app.NewSession(mode)
	if err := machine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer func() {
		_ = machine.Stop(context.WithoutCancel(ctx))
		fmt.Fprintln(out, "Goodbye!")
	}()

	c := &console{in: cmd.InOrStdin(), out: out, prompt: IsTTY(cmd.InOrStdin()), app: app, machine: machine}
	switch {
	case opts.text:
		return c.runText(ctx)
	case opts.voice:
		return c.runVoice(ctx)
	default:
		return c.runInteractive(ctx)
	}
}
