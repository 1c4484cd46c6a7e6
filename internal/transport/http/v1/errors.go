package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/session"
)

// statusFor maps a session or registry error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInProgress), errors.Is(err, domain.ErrAlreadyRunning),
		errors.Is(err, domain.ErrDuplicateAgent), errors.Is(err, session.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotRunning):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}

// turnResponse is returned by every endpoint that runs a turn. Failed turns
// still carry their fallback response text.
type turnResponse struct {
	Response string       `json:"response"`
	Turn     *domain.Turn `json:"turn"`
	Error    string       `json:"error,omitempty"`
}

// turnJSON writes the finalized turn. Turn failures are reported inside the
// body with 200, since the turn itself completed.
func turnJSON(c echo.Context, turn *domain.Turn, err error) error {
	var turnErr *domain.TurnError
	if err != nil && !errors.As(err, &turnErr) {
		return errorJSON(c, err)
	}
	resp := turnResponse{Response: turn.ResponseText, Turn: turn}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
