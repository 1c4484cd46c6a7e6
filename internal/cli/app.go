package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/xiaot623/rica/internal/adapter/agentclient"
	"github.com/xiaot623/rica/internal/adapter/llm"
	"github.com/xiaot623/rica/internal/agent"
	"github.com/xiaot623/rica/internal/audio"
	"github.com/xiaot623/rica/internal/config"
	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/logging"
	"github.com/xiaot623/rica/internal/policy"
	"github.com/xiaot623/rica/internal/repository"
	"github.com/xiaot623/rica/internal/router"
	"github.com/xiaot623/rica/internal/session"
	"github.com/xiaot623/rica/internal/tools"
)

// mockPhrase is what the mock recognizer hears.
const mockPhrase = "What's 2+2?"

// App holds the wired components shared by every command.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Gateway *audio.Gateway
	Agents  *agent.Registry
	Router  *router.Router
	Remote  *agentclient.Client
	Store   repository.Store

	closers []io.Closer
}

// NewApp wires the assistant from cfg. Log output goes to console.
func NewApp(ctx context.Context, cfg *config.Config, console io.Writer) (*App, error) {
	logger, logCloser, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Debug:   cfg.Debug,
		File:    cfg.LogFile,
		Console: console,
	})
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, closers: []io.Closer{logCloser}}

	// Initialize LLM client
	llmClient := llm.NewLLMClient(logger, cfg.MockMode(), cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.AgentTimeout)

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Initialize agents
	defs, err := agent.LoadDefinitions(cfg.AgentsFile)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Remote = agentclient.NewClient(cfg.AgentTimeout)
	app.Agents, err = agent.Build(defs, agent.Dependencies{
		LLM:          llmClient,
		Model:        cfg.OpenAIModel,
		Actions:      tools.DefaultRegistry,
		Policy:       policyEngine,
		RemoteClient: app.Remote,
		Logger:       logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to build agents: %w", err)
	}
	app.Router = router.New(app.Agents, nil)

	// Initialize audio gateway
	app.Gateway = audio.NewGateway(newEngines(cfg), audio.Options{
		SampleRate: cfg.AudioSampleRate,
		Channels:   cfg.AudioChannels,
		VoiceID:    cfg.TTSVoiceID,
		Speed:      cfg.TTSSpeed,
	}, logger)

	// Initialize store
	if cfg.DatabaseURL != "" {
		store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		app.Store = store
		app.closers = append(app.closers, store)
	}

	logger.Debug().
		Str("model", cfg.OpenAIModel).
		Bool("mock", cfg.MockMode()).
		Int("agents", app.Agents.Len()).
		Bool("persistence", app.Store != nil).
		Msg("assistant initialized")
	return app, nil
}

func newEngines(cfg *config.Config) audio.Engines {
	if cfg.MockMode() {
		return audio.MockEngines(mockPhrase)
	}
	client := audio.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.AgentTimeout)
	return audio.Engines{
		Recorder: &audio.CommandRecorder{
			Command:    cfg.RecordCommand,
			SampleRate: cfg.AudioSampleRate,
			Channels:   cfg.AudioChannels,
			ChunkSize:  cfg.AudioChunkSize,
		},
		Recognizer:  audio.NewOpenAIRecognizer(client, cfg.STTModel),
		Synthesizer: audio.NewOpenAISynthesizer(client, cfg.TTSModel),
		Player:      &audio.CommandPlayer{Command: cfg.PlayCommand},
	}
}

// SessionOptions returns the options every session is created with.
func (a *App) SessionOptions(mode domain.Mode) session.Options {
	opts := session.Options{
		Mode:               mode,
		RecognitionTimeout: a.Config.SpeechRecognitionTimeout,
		PhraseLimit:        a.Config.SpeechPhraseTimeLimit,
		AgentTimeout:       a.Config.AgentTimeout,
		HistoryWindow:      a.Config.HistoryWindow,
		Logger:             a.Logger,
	}
	if a.Store != nil {
		opts.Store = a.Store
	}
	return opts
}

// NewSession creates a session that owns the audio gateway.
func (a *App) NewSession(mode domain.Mode) *session.Machine {
	return session.New(a.Gateway, a.Router, a.Agents, a.SessionOptions(mode))
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
