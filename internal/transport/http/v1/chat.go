package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/rica/internal/domain"
)

// Session ids used by the one-shot endpoints.
const (
	DefaultUserID    = "default"
	ManagerSessionID = "manager"
)

// ChatRequest is the request for POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// ChatResponse is the response for POST /chat.
type ChatResponse struct {
	Response  string `json:"response"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// AskRequest is the request for POST /manager/ask.
type AskRequest struct {
	QueryText string `json:"query_text"`
}

// AskResponse is the response for POST /manager/ask.
type AskResponse struct {
	Response      string `json:"response"`
	OriginalQuery string `json:"original_query"`
}

// Chat runs a text turn in the caller's session, creating it on first use.
// POST /chat
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	text, err := h.oneShot(c, req.UserID, req.Message)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, ChatResponse{
		Response:  text,
		UserID:    req.UserID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Ask answers a single query. It is the endpoint remote front ends such as
// chat bots forward to.
// POST /manager/ask
func (h *Handler) Ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.QueryText == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query_text is required"})
	}

	text, err := h.oneShot(c, ManagerSessionID, req.QueryText)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, AskResponse{
		Response:      text,
		OriginalQuery: req.QueryText,
	})
}

// oneShot runs a text turn and returns its response text, which is the
// fallback text when the turn failed.
func (h *Handler) oneShot(c echo.Context, sessionID, text string) (string, error) {
	ctx := c.Request().Context()
	machine, err := h.sessions.GetOrCreate(ctx, sessionID, domain.ModeText)
	if err != nil {
		return "", err
	}
	turn, err := machine.ProcessTextInput(ctx, text)
	var turnErr *domain.TurnError
	if err != nil && !errors.As(err, &turnErr) {
		return "", err
	}
	if turnErr != nil {
		h.logger.Warn().Err(turnErr).Str("session_id", sessionID).Msg("turn failed")
	}
	return turn.ResponseText, nil
}
