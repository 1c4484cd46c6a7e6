// Package v1 provides the REST handlers for sessions, agents and chat.
package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/rica/internal/adapter/agentclient"
	"github.com/xiaot623/rica/internal/agent"
	"github.com/xiaot623/rica/internal/audio"
	"github.com/xiaot623/rica/internal/repository"
	"github.com/xiaot623/rica/internal/session"
)

// Version is reported by the root and health endpoints.
const Version = "0.1.0"

// AudioStatus reports the shared audio gateway state.
type AudioStatus interface {
	Status(ctx context.Context) audio.Status
}

// Deps are the collaborators the handlers need. Store and Audio are
// optional.
type Deps struct {
	Sessions *session.Manager
	Agents   *agent.Registry
	Remote   *agentclient.Client
	Store    repository.Store
	Audio    AudioStatus
	Logger   zerolog.Logger
}

// Handler handles HTTP requests.
type Handler struct {
	sessions *session.Manager
	agents   *agent.Registry
	remote   *agentclient.Client
	store    repository.Store
	audio    AudioStatus
	logger   zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(deps Deps) *Handler {
	remote := deps.Remote
	if remote == nil {
		remote = agentclient.NewClient(0)
	}
	return &Handler{
		sessions: deps.Sessions,
		agents:   deps.Agents,
		remote:   remote,
		store:    deps.Store,
		audio:    deps.Audio,
		logger:   deps.Logger,
	}
}

// Endpoints is the list reported by GET /api/v1/status.
var Endpoints = []string{
	"/",
	"/health",
	"/chat",
	"/manager/ask",
	"/v1/sessions",
	"/v1/agents",
	"/ws",
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.GET("/api/v1/status", h.APIStatus)

	// One-shot text endpoints
	e.POST("/chat", h.Chat)
	e.POST("/manager/ask", h.Ask)

	// Session API
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.POST("/v1/sessions/:session_id/text", h.SubmitText)
	e.POST("/v1/sessions/:session_id/audio", h.SubmitAudio)
	e.PUT("/v1/sessions/:session_id/mode", h.SetMode)
	e.POST("/v1/sessions/:session_id/cancel", h.CancelTurn)
	e.GET("/v1/sessions/:session_id/turns", h.ListTurns)

	// Agent registry API
	e.GET("/v1/agents", h.ListAgents)
	e.POST("/v1/agents/register", h.RegisterAgent)
	e.DELETE("/v1/agents/:agent_id", h.RemoveAgent)
}

// Root returns a welcome message.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Welcome to RICA API",
		"version": Version,
	})
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// APIStatus lists the served endpoints and the audio state.
// GET /api/v1/status
func (h *Handler) APIStatus(c echo.Context) error {
	resp := map[string]interface{}{
		"api_version": "v1",
		"status":      "operational",
		"endpoints":   Endpoints,
		"agents":      h.agents.Len(),
		"sessions":    len(h.sessions.List()),
	}
	if h.audio != nil {
		resp["audio"] = h.audio.Status(c.Request().Context())
	}
	return c.JSON(http.StatusOK, resp)
}
