package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a synchronous client for a RICA WebSocket endpoint. It is not
// safe for concurrent use, and a request abandoned through its context
// leaves the connection unusable.
type Client struct {
	conn      *websocket.Conn
	sessionID string

	// OnState, when set, receives the state messages read while waiting.
	OnState func(StateMessage)
}

// Dial connects to addr, e.g. ws://localhost:8000/ws.
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// SessionID returns the session bound by Hello.
func (c *Client) SessionID() string { return c.sessionID }

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// Hello opens a session. Empty sessionID and mode use server defaults.
func (c *Client) Hello(ctx context.Context, sessionID, mode string) (*HelloAckMessage, error) {
	msg := HelloMessage{
		BaseMessage: BaseMessage{Type: TypeHello, Ts: time.Now().UnixMilli(), SessionID: sessionID},
		Mode:        mode,
	}
	var ack HelloAckMessage
	if err := c.roundTrip(ctx, msg, "", TypeHelloAck, &ack); err != nil {
		return nil, fmt.Errorf("hello failed: %w", err)
	}
	c.sessionID = ack.SessionID
	return &ack, nil
}

// Text runs a text turn and waits for it.
func (c *Client) Text(ctx context.Context, text string) (*TurnMessage, error) {
	id := newRequestID()
	msg := TextInputMessage{BaseMessage: c.base(TypeTextInput, id), Text: text}
	var turn TurnMessage
	if err := c.roundTrip(ctx, msg, id, TypeTurn, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

// Audio runs a turn for a recorded clip and waits for it.
func (c *Client) Audio(ctx context.Context, data []byte, format string) (*TurnMessage, error) {
	id := newRequestID()
	msg := AudioInputMessage{BaseMessage: c.base(TypeAudioInput, id), Audio: data, Format: format}
	var turn TurnMessage
	if err := c.roundTrip(ctx, msg, id, TypeTurn, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

// SetMode switches the session mode.
func (c *Client) SetMode(ctx context.Context, mode string) error {
	id := newRequestID()
	var ack ModeMessage
	return c.roundTrip(ctx, SetModeMessage{BaseMessage: c.base(TypeSetMode, id), Mode: mode}, id, TypeMode, &ack)
}

// Cancel asks the server to abort the in-flight turn. It does not wait.
func (c *Client) Cancel() error {
	return c.conn.WriteJSON(BaseMessage{Type: TypeCancel, Ts: time.Now().UnixMilli(), SessionID: c.sessionID})
}

func (c *Client) base(typ, requestID string) BaseMessage {
	return BaseMessage{Type: typ, Ts: time.Now().UnixMilli(), SessionID: c.sessionID, RequestID: requestID}
}

// roundTrip writes msg and reads until a message of type want (or an error)
// carrying requestID arrives. An empty requestID matches any message.
func (c *Client) roundTrip(ctx context.Context, msg interface{}, requestID, want string, out interface{}) error {
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", want, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		var base BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		if base.Type == TypeState {
			if c.OnState != nil {
				var st StateMessage
				if json.Unmarshal(data, &st) == nil {
					c.OnState(st)
				}
			}
			continue
		}
		if requestID != "" && base.RequestID != requestID {
			continue
		}
		switch base.Type {
		case want:
			return json.Unmarshal(data, out)
		case TypeError:
			var errMsg ErrorMessage
			_ = json.Unmarshal(data, &errMsg)
			return fmt.Errorf("%s: %s", errMsg.Code, errMsg.Message)
		}
	}
}

func newRequestID() string {
	return "req_" + uuid.New().String()[:8]
}
