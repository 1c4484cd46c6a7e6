package ws

import "github.com/xiaot623/rica/internal/domain"

// Message types from client to server
const (
	TypeHello      = "hello"
	TypeTextInput  = "text_input"
	TypeAudioInput = "audio_input"
	TypeSetMode    = "set_mode"
	TypeCancel     = "cancel"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeState    = "state"
	TypeMode     = "mode"
	TypeTurn     = "turn"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage opens the session bound to the connection.
type HelloMessage struct {
	BaseMessage
	Mode string `json:"mode,omitempty"`
}

// HelloAckMessage confirms the session.
type HelloAckMessage struct {
	BaseMessage
	Mode domain.Mode `json:"mode"`
}

// TextInputMessage carries typed input.
type TextInputMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// AudioInputMessage carries a recorded clip, base64 encoded.
type AudioInputMessage struct {
	BaseMessage
	Audio  []byte `json:"audio"`
	Format string `json:"format,omitempty"`
}

// SetModeMessage switches the session mode.
type SetModeMessage struct {
	BaseMessage
	Mode string `json:"mode"`
}

// StateMessage reports a status transition.
type StateMessage struct {
	BaseMessage
	From domain.Status `json:"from"`
	To   domain.Status `json:"to"`
}

// ModeMessage confirms a mode change.
type ModeMessage struct {
	BaseMessage
	Mode domain.Mode `json:"mode"`
}

// TurnMessage carries a finalized turn.
type TurnMessage struct {
	BaseMessage
	Response string       `json:"response"`
	Turn     *domain.Turn `json:"turn"`
	Error    string       `json:"error,omitempty"`
}

// ErrorMessage is sent when a request cannot be served.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeInvalidInput    = "invalid_input"
	ErrorCodeTurnInProgress  = "turn_in_progress"
	ErrorCodeNotRunning      = "not_running"
	ErrorCodeInternalError   = "internal_error"
)
