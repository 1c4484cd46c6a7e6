package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/rica/internal/agent"
	"github.com/xiaot623/rica/internal/domain"
)

// AgentRegisterRequest is the request to register a remote agent.
type AgentRegisterRequest struct {
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities,omitempty"`
	Priority     int      `json:"priority,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// RegisterAgent registers a remote agent reached over SSE.
// POST /v1/agents/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	var req AgentRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}
	if req.Endpoint == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "endpoint is required"})
	}
	if len(req.Capabilities) == 0 {
		req.Capabilities = []string{domain.CapabilityCustomPrefix + req.AgentID}
	}

	desc := domain.AgentDescriptor{
		ID:           req.AgentID,
		Name:         req.Name,
		Kind:         domain.AgentKindCustom,
		Capabilities: req.Capabilities,
		Priority:     req.Priority,
		Keywords:     req.Keywords,
	}
	if err := h.agents.Register(desc, agent.NewRemoteAgent(req.AgentID, req.Endpoint, h.remote)); err != nil {
		return errorJSON(c, err)
	}
	h.logger.Info().Str("agent_id", req.AgentID).Str("endpoint", req.Endpoint).Msg("remote agent registered")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":            true,
		"registered_at": time.Now().UnixMilli(),
	})
}

// ListAgents lists all registered agents in routing order.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	defaultID, _ := h.agents.Default()
	descs := h.agents.Descriptors()

	agentList := make([]map[string]interface{}, len(descs))
	for i, d := range descs {
		agentList[i] = map[string]interface{}{
			"agent_id":     d.ID,
			"name":         d.Name,
			"kind":         d.Kind,
			"capabilities": d.Capabilities,
			"priority":     d.Priority,
			"default":      d.ID == defaultID,
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": agentList,
	})
}

// RemoveAgent unregisters an agent.
// DELETE /v1/agents/:agent_id
func (h *Handler) RemoveAgent(c echo.Context) error {
	if err := h.agents.Remove(c.Param("agent_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
