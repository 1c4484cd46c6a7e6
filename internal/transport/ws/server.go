// Package ws serves sessions over WebSocket. Each connection owns one
// session, opened by hello and stopped when the socket closes.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/session"
)

// Config holds connection timing and limits.
type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4 << 20
	}
	return c
}

// Server handles WebSocket connections.
type Server struct {
	cfg      Config
	sessions *session.Manager
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*connection
}

// NewServer creates a WebSocket server and subscribes it to the session
// transitions of sessions.
func NewServer(cfg Config, sessions *session.Manager, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		logger:   logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns: make(map[string]*connection),
	}
	sessions.AddObserver(s.observe)
	return s
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade websocket")
		return
	}
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	conn := newConnection(ws)
	go s.writePump(conn)
	s.readPump(conn)
}

// readPump reads messages until the socket fails, then tears down the
// connection's session.
func (s *Server) readPump(conn *connection) {
	ctx, cancel := context.WithCancel(context.Background())
	var turns sync.WaitGroup
	defer func() {
		cancel()
		if id := conn.session(); id != "" {
			s.mu.Lock()
			delete(s.conns, id)
			s.mu.Unlock()
			if err := s.sessions.Remove(context.Background(), id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
				s.logger.Warn().Err(err).Str("session_id", id).Msg("failed to stop session")
			}
		}
		turns.Wait()
		conn.close()
		s.logger.Debug().Str("conn_id", conn.id).Msg("connection closed")
	}()

	_ = conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("conn_id", conn.id).Msg("websocket error")
			}
			return
		}
		s.handleMessage(ctx, conn, message, &turns)
	}
}

// writePump writes queued messages and pings.
func (s *Server) writePump(conn *connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn().Err(err).Str("conn_id", conn.id).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(ctx context.Context, conn *connection, data []byte, turns *sync.WaitGroup) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	if base.Type == TypeHello {
		s.handleHello(ctx, conn, data)
		return
	}

	id := conn.session()
	if id == "" {
		s.sendError(conn, base.RequestID, ErrorCodeSessionRequired, "must send hello first")
		return
	}
	machine, err := s.sessions.Get(id)
	if err != nil {
		s.sendError(conn, base.RequestID, ErrorCodeNotRunning, err.Error())
		return
	}

	switch base.Type {
	case TypeTextInput:
		var msg TextInputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, base.RequestID, ErrorCodeInvalidMessage, "invalid text_input message")
			return
		}
		s.runTurn(ctx, conn, msg.RequestID, turns, func(ctx context.Context) (*domain.Turn, error) {
			return machine.ProcessTextInput(ctx, msg.Text)
		})
	case TypeAudioInput:
		var msg AudioInputMessage
		if err := json.Unmarshal(data, &msg); err != nil || len(msg.Audio) == 0 {
			s.sendError(conn, base.RequestID, ErrorCodeInvalidMessage, "invalid audio_input message")
			return
		}
		s.runTurn(ctx, conn, msg.RequestID, turns, func(ctx context.Context) (*domain.Turn, error) {
			return machine.ProcessAudioInput(ctx, msg.Audio, msg.Format)
		})
	case TypeSetMode:
		var msg SetModeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, base.RequestID, ErrorCodeInvalidMessage, "invalid set_mode message")
			return
		}
		mode, err := domain.ParseMode(msg.Mode)
		if err == nil {
			err = machine.SetMode(mode)
		}
		if err != nil {
			s.sendError(conn, msg.RequestID, codeFor(err), err.Error())
			return
		}
		conn.sendJSON(ModeMessage{BaseMessage: s.base(TypeMode, id, msg.RequestID), Mode: mode})
	case TypeCancel:
		if err := machine.Cancel(); err != nil {
			s.sendError(conn, base.RequestID, codeFor(err), err.Error())
		}
	default:
		s.sendError(conn, base.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

// handleHello binds the connection to a new session.
func (s *Server) handleHello(ctx context.Context, conn *connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid hello message")
		return
	}
	if conn.session() != "" {
		s.sendError(conn, msg.RequestID, ErrorCodeInvalidMessage, "session already bound")
		return
	}

	var mode domain.Mode
	if msg.Mode != "" {
		m, err := domain.ParseMode(msg.Mode)
		if err != nil {
			s.sendError(conn, msg.RequestID, ErrorCodeInvalidInput, err.Error())
			return
		}
		mode = m
	}

	machine, err := s.create(ctx, conn, msg.SessionID, mode)
	if err != nil {
		s.sendError(conn, msg.RequestID, ErrorCodeInternalError, err.Error())
		return
	}

	conn.sendJSON(HelloAckMessage{
		BaseMessage: s.base(TypeHelloAck, machine.ID(), msg.RequestID),
		Mode:        machine.Mode(),
	})
	s.logger.Info().Str("session_id", machine.ID()).Str("conn_id", conn.id).Msg("hello handshake completed")
}

func (s *Server) create(ctx context.Context, conn *connection, id string, mode domain.Mode) (*session.Machine, error) {
	machine, err := s.sessions.Create(ctx, id, mode)
	if err != nil {
		return nil, err
	}
	conn.bind(machine.ID())
	s.mu.Lock()
	s.conns[machine.ID()] = conn
	s.mu.Unlock()
	return machine, nil
}

// runTurn processes a turn without blocking the read pump, so cancel
// messages are still read while it runs.
func (s *Server) runTurn(ctx context.Context, conn *connection, requestID string, turns *sync.WaitGroup, process func(context.Context) (*domain.Turn, error)) {
	turns.Add(1)
	go func() {
		defer turns.Done()
		turn, err := process(ctx)
		var turnErr *domain.TurnError
		if err != nil && !errors.As(err, &turnErr) {
			s.sendError(conn, requestID, codeFor(err), err.Error())
			return
		}
		msg := TurnMessage{
			BaseMessage: s.base(TypeTurn, turn.SessionID, requestID),
			Response:    turn.ResponseText,
			Turn:        turn,
		}
		if err != nil {
			msg.Error = err.Error()
		}
		conn.sendJSON(msg)
	}()
}

// observe forwards status transitions to the connection owning the session.
func (s *Server) observe(sessionID string, from, to domain.Status) {
	s.mu.RLock()
	conn := s.conns[sessionID]
	s.mu.RUnlock()
	if conn == nil {
		return
	}
	conn.sendJSON(StateMessage{BaseMessage: s.base(TypeState, sessionID, ""), From: from, To: to})
}

func (s *Server) base(typ, sessionID, requestID string) BaseMessage {
	return BaseMessage{Type: typ, Ts: time.Now().UnixMilli(), SessionID: sessionID, RequestID: requestID}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *connection, requestID, code, message string) {
	conn.sendJSON(ErrorMessage{
		BaseMessage: s.base(TypeError, conn.session(), requestID),
		Code:        code,
		Message:     message,
	})
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidMode):
		return ErrorCodeInvalidInput
	case errors.Is(err, domain.ErrTurnInProgress):
		return ErrorCodeTurnInProgress
	case errors.Is(err, domain.ErrNotRunning):
		return ErrorCodeNotRunning
	default:
		return ErrorCodeInternalError
	}
}
