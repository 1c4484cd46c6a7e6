package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/rica/internal/domain"
)

// CreateSessionRequest is the request to open a session.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// TextInputRequest carries typed input for one turn.
type TextInputRequest struct {
	Text string `json:"text"`
}

// AudioInputRequest carries a recorded clip for one turn. Audio is base64
// in JSON.
type AudioInputRequest struct {
	Audio  []byte `json:"audio"`
	Format string `json:"format,omitempty"`
}

// SetModeRequest switches a session between voice and text.
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// CreateSession opens a new session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	var mode domain.Mode
	if req.Mode != "" {
		m, err := domain.ParseMode(req.Mode)
		if err != nil {
			return errorJSON(c, err)
		}
		mode = m
	}

	machine, err := h.sessions.Create(ctx, req.SessionID, mode)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, machine.Snapshot())
}

// ListSessions lists the open sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": h.sessions.List(),
	})
}

// GetSession returns a session snapshot.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	machine, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, machine.Snapshot())
}

// DeleteSession stops a session.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.sessions.Remove(c.Request().Context(), c.Param("session_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SubmitText runs a text turn and waits for it to finish.
// POST /v1/sessions/:session_id/text
func (h *Handler) SubmitText(c echo.Context) error {
	machine, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	var req TextInputRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	turn, err := machine.ProcessTextInput(c.Request().Context(), req.Text)
	return turnJSON(c, turn, err)
}

// SubmitAudio transcribes a clip and runs a turn for it.
// POST /v1/sessions/:session_id/audio
func (h *Handler) SubmitAudio(c echo.Context) error {
	machine, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	var req AudioInputRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Audio) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "audio is required"})
	}
	if req.Format == "" {
		req.Format = "wav"
	}
	turn, err := machine.ProcessAudioInput(c.Request().Context(), req.Audio, req.Format)
	return turnJSON(c, turn, err)
}

// SetMode switches the session mode.
// PUT /v1/sessions/:session_id/mode
func (h *Handler) SetMode(c echo.Context) error {
	machine, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	var req SetModeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		return errorJSON(c, err)
	}
	if err := machine.SetMode(mode); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, machine.Snapshot())
}

// CancelTurn aborts the in-flight turn, if any.
// POST /v1/sessions/:session_id/cancel
func (h *Handler) CancelTurn(c echo.Context) error {
	machine, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	if err := machine.Cancel(); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ListTurns returns the turn history of a session, oldest first. With a
// store configured, history of stopped sessions is served too.
// GET /v1/sessions/:session_id/turns?limit=N
func (h *Handler) ListTurns(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	if h.store != nil {
		rec, err := h.store.GetSession(ctx, sessionID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if rec != nil {
			turns, err := h.store.ListTurns(ctx, sessionID, limit)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
			return c.JSON(http.StatusOK, map[string]interface{}{"turns": turns})
		}
	}

	machine, err := h.sessions.Get(sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	turns := machine.History()
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"turns": turns})
}
