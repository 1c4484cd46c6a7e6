// Package config provides configuration for the assistant.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when no explicit config file is given.
const DefaultEnvFile = ".env"

// ModeMock swaps every remote engine for an in-process mock.
const ModeMock = "MOCK"

// Config holds the assistant configuration.
type Config struct {
	// LLM settings
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	STTModel      string
	TTSModel      string

	// Audio settings
	AudioSampleRate          int
	AudioChannels            int
	AudioChunkSize           int
	SpeechRecognitionTimeout time.Duration
	SpeechPhraseTimeLimit    time.Duration
	TTSVoiceID               string
	TTSSpeed                 float64
	RecordCommand            string
	PlayCommand              string

	// Server settings
	Host string
	Port int

	// WebSocket settings
	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	WSReadTimeout    time.Duration
	WSMaxMessageSize int64

	// Session settings
	AgentTimeout  time.Duration
	HistoryWindow int

	// Storage
	DatabaseURL string
	AgentsFile  string

	// Logging
	Debug    bool
	LogLevel string
	LogFile  string

	Mode string
}

// Load reads envFile (when present) into the process environment and
// builds the configuration from environment variables. Variables already
// set in the environment take precedence over the file. A missing default
// file is not an error; a missing explicit file is.
func Load(envFile string) (*Config, error) {
	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if envFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		OpenAIAPIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:              getEnv("OPENAI_MODEL", "gpt-4"),
		OpenAIBaseURL:            getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		STTModel:                 getEnv("STT_MODEL", "whisper-1"),
		TTSModel:                 getEnv("TTS_MODEL", "tts-1"),
		AudioSampleRate:          getEnvInt("AUDIO_SAMPLE_RATE", 16000),
		AudioChannels:            getEnvInt("AUDIO_CHANNELS", 1),
		AudioChunkSize:           getEnvInt("AUDIO_CHUNK_SIZE", 1024),
		SpeechRecognitionTimeout: getEnvSeconds("SPEECH_RECOGNITION_TIMEOUT", 5.0),
		SpeechPhraseTimeLimit:    getEnvSeconds("SPEECH_PHRASE_TIME_LIMIT", 10.0),
		TTSVoiceID:               getEnv("TTS_VOICE_ID", ""),
		TTSSpeed:                 getEnvFloat("TTS_SPEED", 1.0),
		RecordCommand:            getEnv("RECORD_COMMAND", "rec"),
		PlayCommand:              getEnv("PLAY_COMMAND", "play"),
		Host:                     getEnv("HOST", "127.0.0.1"),
		Port:                     getEnvInt("PORT", 8000),
		WSPingInterval:           time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WSWriteTimeout:           time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSReadTimeout:            time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		WSMaxMessageSize:         int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 4<<20)),
		AgentTimeout:             time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 30000)) * time.Millisecond,
		HistoryWindow:            getEnvInt("HISTORY_WINDOW", 10),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		AgentsFile:               getEnv("AGENTS_FILE", ""),
		Debug:                    getEnvBool("DEBUG", false),
		LogLevel:                 strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		LogFile:                  getEnv("LOG_FILE", ""),
		Mode:                     strings.ToUpper(getEnv("RICA_MODE", "")),
	}
	return cfg, nil
}

// Validate reports configuration problems that prevent startup.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" && !c.MockMode() {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.TTSSpeed < 0.1 || c.TTSSpeed > 3.0 {
		return fmt.Errorf("TTS_SPEED must be between 0.1 and 3.0, got %v", c.TTSSpeed)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("HISTORY_WINDOW must not be negative")
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARNING", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

// MockMode reports whether mock engines were requested.
func (c *Config) MockMode() bool {
	return c.Mode == ModeMock
}

// Addr returns the host:port the API server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvSeconds reads a fractional number of seconds.
func getEnvSeconds(key string, defaultVal float64) time.Duration {
	return time.Duration(getEnvFloat(key, defaultVal) * float64(time.Second))
}
