package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/session"
	httpserver "github.com/xiaot623/rica/internal/transport/http"
	v1 "github.com/xiaot623/rica/internal/transport/http/v1"
	"github.com/xiaot623/rica/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST and WebSocket API",
		Long: `Serve the REST API and the WebSocket endpoint /ws. Every client
session is independent; all sessions share the agent registry and the
audio gateway.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			e, sessions, err := app.NewServer(ctx)
			if err != nil {
				return err
			}
			return serve(ctx, app, e, sessions)
		},
	}
}

// NewServer opens the shared gateway and builds the HTTP server with the
// WebSocket endpoint mounted.
func (a *App) NewServer(ctx context.Context) (*echo.Echo, *session.Manager, error) {
	if err := a.Gateway.Open(ctx); err != nil {
		return nil, nil, err
	}
	sessions := session.NewManager(a.Gateway, a.Router, a.Agents, a.SessionOptions(domain.ModeText))
	wsServer := ws.NewServer(ws.Config{
		PingInterval:   a.Config.WSPingInterval,
		WriteTimeout:   a.Config.WSWriteTimeout,
		ReadTimeout:    a.Config.WSReadTimeout,
		MaxMessageSize: a.Config.WSMaxMessageSize,
	}, sessions, a.Logger)

	e := httpserver.NewServer(v1.Deps{
		Sessions: sessions,
		Agents:   a.Agents,
		Remote:   a.Remote,
		Store:    a.Store,
		Audio:    a.Gateway,
		Logger:   a.Logger,
	}, wsServer)
	return e, sessions, nil
}

func serve(ctx context.Context, app *App, e *echo.Echo, sessions *session.Manager) error {
	addr := app.Config.Addr()
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	app.Logger.Info().Str("addr", addr).Int("agents", app.Agents.Len()).Msg("API server started")

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	app.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("server forced to shutdown")
	}
	sessions.StopAll(shutdownCtx)
	if err := app.Gateway.Close(); err != nil {
		app.Logger.Warn().Err(err).Msg("failed to close audio gateway")
	}
	app.Logger.Info().Msg("server exited")
	return serveErr
}
