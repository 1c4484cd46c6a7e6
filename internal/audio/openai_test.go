package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIRecognizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "speech.wav", hdr.Filename)
		assert.Equal(t, "RIFF", string(data[:4]))
		fmt.Fprint(w, `{"text":"what time is it"}`)
	}))
	defer server.Close()

	r := NewOpenAIRecognizer(NewOpenAIClient(server.URL, "sk", time.Second), "whisper-1")
	text, err := r.Recognize(context.Background(), &Clip{Data: EncodeWAV([]byte{0, 0}, 16000, 1), Format: "wav"})
	require.NoError(t, err)
	assert.Equal(t, "what time is it", text)
}

func TestOpenAISynthesizer(t *testing.T) {
	var got speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("RIFFdata"))
	}))
	defer server.Close()

	s := NewOpenAISynthesizer(NewOpenAIClient(server.URL, "", time.Second), "tts-1")
	clip, err := s.Synthesize(context.Background(), "hello", SpeakOptions{Speed: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(clip.Data))
	assert.Equal(t, DefaultVoice, got.Voice)
	assert.Equal(t, 0.25, got.Speed)
	assert.Equal(t, "hello", got.Input)
}

func TestOpenAIErrorsAreNetworkErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer server.Close()

	s := NewOpenAISynthesizer(NewOpenAIClient(server.URL, "", time.Second), "tts-1")
	_, err := s.Synthesize(context.Background(), "hello", SpeakOptions{})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorContains(t, err, "overloaded")

	server.Close()
	r := NewOpenAIRecognizer(NewOpenAIClient(server.URL, "", time.Second), "whisper-1")
	_, err = r.Recognize(context.Background(), &Clip{Data: []byte("x"), Format: "wav"})
	assert.ErrorIs(t, err, ErrNetwork)
}
