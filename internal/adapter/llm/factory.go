package llm

import (
	"time"

	"github.com/rs/zerolog"
)

// NewLLMClient returns the mock client when mock is set, otherwise a real
// client for baseURL.
func NewLLMClient(logger zerolog.Logger, mock bool, baseURL, apiKey string, timeout time.Duration) LLMClient {
	if mock {
		logger.Info().Msg("mock mode detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
