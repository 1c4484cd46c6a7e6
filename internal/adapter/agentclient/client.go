// Package agentclient invokes remote agents over HTTP and reads their
// server-sent event stream.
package agentclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Event names a remote agent may send.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// InvokeRequest is the body posted to {endpoint}/invoke.
type InvokeRequest struct {
	AgentID   string           `json:"agent_id"`
	SessionID string           `json:"session_id"`
	TurnID    string           `json:"turn_id"`
	Input     string           `json:"input"`
	History   []HistoryMessage `json:"history,omitempty"`
}

// HistoryMessage is one prior message in chat form.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeltaEvent carries an incremental piece of the response.
type DeltaEvent struct {
	Text string `json:"text"`
}

// DoneEvent ends a successful stream.
type DoneEvent struct {
	FinalMessage string `json:"final_message"`
}

// ErrorEvent ends a failed stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SSEEvent represents a parsed SSE event.
type SSEEvent struct {
	Event string
	Data  string
}

// EventHandler is called for each SSE event from the agent.
type EventHandler func(event SSEEvent) error

// Client is an HTTP client for invoking agents.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client. The per-turn deadline comes from the context;
// timeout is an upper bound for a single stream.
func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Invoke posts req and streams the SSE response to handler.
func (c *Client) Invoke(ctx context.Context, endpoint string, req *InvokeRequest, handler EventHandler) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(endpoint, "/") + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Session-ID", req.SessionID)
	httpReq.Header.Set("X-Turn-ID", req.TurnID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to invoke agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return parseSSE(resp.Body, handler)
}

// Collect invokes the agent and assembles the final text. A done event
// with a final message wins over the accumulated deltas.
func (c *Client) Collect(ctx context.Context, endpoint string, req *InvokeRequest) (string, error) {
	var text strings.Builder
	var final string
	finished := false

	err := c.Invoke(ctx, endpoint, req, func(ev SSEEvent) error {
		switch ev.Event {
		case EventDelta:
			var d DeltaEvent
			if err := decodeEvent(ev.Data, &d); err != nil {
				return err
			}
			text.WriteString(d.Text)
		case EventDone:
			var d DoneEvent
			if err := decodeEvent(ev.Data, &d); err != nil {
				return err
			}
			final = d.FinalMessage
			finished = true
		case EventError:
			var e ErrorEvent
			if err := decodeEvent(ev.Data, &e); err != nil {
				return err
			}
			return fmt.Errorf("agent error %s: %s", e.Code, e.Message)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !finished {
		return "", fmt.Errorf("agent stream ended without done event")
	}
	if final != "" {
		return final, nil
	}
	return text.String(), nil
}

func decodeEvent(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	return nil
}

// parseSSE splits an event stream into events. Multi-line data fields are
// joined with newlines; comments and unknown fields are ignored.
func parseSSE(reader io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var event SSEEvent
	flush := func() error {
		if event.Event == "" && event.Data == "" {
			return nil
		}
		err := handler(event)
		event = SSEEvent{}
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return scanner.Err()
}
