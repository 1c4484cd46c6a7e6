package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultVoice is used when no voice is configured.
const DefaultVoice = "alloy"

// OpenAIClient holds the connection settings shared by the OpenAI
// recognition and synthesis engines.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible audio API.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) do(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := string(data)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrNetwork, path, resp.StatusCode, msg)
	}
	return data, nil
}

// OpenAIRecognizer transcribes clips with the transcriptions endpoint.
type OpenAIRecognizer struct {
	client *OpenAIClient
	model  string
}

// NewOpenAIRecognizer creates a recognizer using model, e.g. whisper-1.
func NewOpenAIRecognizer(client *OpenAIClient, model string) *OpenAIRecognizer {
	return &OpenAIRecognizer{client: client, model: model}
}

// Recognize uploads the clip as multipart form data.
func (r *OpenAIRecognizer) Recognize(ctx context.Context, clip *Clip) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "speech."+clip.Format)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", r.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	data, err := r.client.do(ctx, "/v1/audio/transcriptions", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%w: invalid transcription response: %v", ErrNetwork, err)
	}
	return result.Text, nil
}

// OpenAISynthesizer renders speech with the speech endpoint.
type OpenAISynthesizer struct {
	client *OpenAIClient
	model  string
}

// NewOpenAISynthesizer creates a synthesizer using model, e.g. tts-1.
func NewOpenAISynthesizer(client *OpenAIClient, model string) *OpenAISynthesizer {
	return &OpenAISynthesizer{client: client, model: model}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format"`
}

// Synthesize returns a WAV clip for text.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, opts SpeakOptions) (*Clip, error) {
	voice := opts.VoiceID
	if voice == "" {
		voice = DefaultVoice
	}
	body, err := json.Marshal(speechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		Speed:          clampSpeed(opts.Speed),
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	data, err := s.client.do(ctx, "/v1/audio/speech", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &Clip{Data: data, Format: "wav"}, nil
}

// clampSpeed maps the gateway range onto the API range of 0.25 to 4.0.
func clampSpeed(speed float64) float64 {
	switch {
	case speed == 0:
		return 1.0
	case speed < 0.25:
		return 0.25
	case speed > 4.0:
		return 4.0
	}
	return speed
}
