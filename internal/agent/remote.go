package agent

import (
	"context"

	"github.com/xiaot623/rica/internal/adapter/agentclient"
)

// RemoteAgent forwards requests to an agent served over HTTP.
type RemoteAgent struct {
	id       string
	endpoint string
	client   *agentclient.Client
}

// NewRemoteAgent creates an agent that invokes endpoint.
func NewRemoteAgent(id, endpoint string, client *agentclient.Client) *RemoteAgent {
	return &RemoteAgent{id: id, endpoint: endpoint, client: client}
}

// Endpoint returns the base URL of the remote agent.
func (a *RemoteAgent) Endpoint() string {
	return a.endpoint
}

// Respond posts the input and history and waits for the done event.
func (a *RemoteAgent) Respond(ctx context.Context, req Request) (string, error) {
	history := make([]agentclient.HistoryMessage, 0, 2*len(req.History))
	for _, turn := range req.History {
		history = append(history,
			agentclient.HistoryMessage{Role: "user", Content: turn.InputText},
			agentclient.HistoryMessage{Role: "assistant", Content: turn.ResponseText},
		)
	}
	return a.client.Collect(ctx, a.endpoint, &agentclient.InvokeRequest{
		AgentID:   a.id,
		SessionID: req.SessionID,
		Input:     req.Input,
		History:   history,
	})
}
