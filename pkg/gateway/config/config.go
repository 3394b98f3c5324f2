package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Audio handshake constants. Clients stream little-endian 16-bit PCM mono.
const (
	SampleRate        = 16000
	Channels          = 1
	BitDepth          = 16
	ExpectedChunkSize = 4096
)

// DefaultSystemPrompt seeds every dialog. Overridable via ALMA_SYSTEM_PROMPT.
const DefaultSystemPrompt = "Eres ALMA (Asistente Lingüístico de Monitoreo Amigable). " +
	"Eres un asistente de inteligencia artificial que se comunica exclusivamente en español. " +
	"Tu estilo debe ser breve, claro, empático y directo. Guía al usuario a través de las " +
	"preguntas y actividades de evaluación una por una, dándole todo el tiempo necesario para responder."

type Config struct {
	Addr string

	// Recognizer model directory. Empty disables transcription; the server
	// still accepts audio and keeps the rest of the session features.
	ModelPath string

	AudioDir      string
	TranscriptDir string

	// Assistant service (Ollama-compatible /api/chat).
	LLMBaseURL     string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTopP        float64

	SystemPrompt string
	WakePhrase   string
	StopPhrases  []string
	ResetPhrases []string

	// Delay between a final transcript and the assistant dispatch, used to
	// coalesce rapid consecutive finals. Zero disables it; correctness never
	// depends on it.
	DispatchDebounce time.Duration

	AckEveryN     int
	StatsInterval time.Duration

	WSReadLimit        int64
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSHandshakeTimeout time.Duration
	OutboundQueueSize  int

	// CORS. Empty map disables cross-origin access.
	CORSAllowedOrigins map[string]struct{}

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("ALMA_ADDR", ":3000"),
		ModelPath:           envOr("ALMA_MODEL_PATH", ""),
		AudioDir:            envOr("ALMA_AUDIO_DIR", "data/audio"),
		TranscriptDir:       envOr("ALMA_TRANSCRIPT_DIR", "data/transcripts"),
		LLMBaseURL:          envOr("ALMA_LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:            envOr("ALMA_LLM_MODEL", "qwen2.5:7b-instruct"),
		LLMMaxTokens:        envIntOr("ALMA_LLM_MAX_TOKENS", 512),
		LLMTemperature:      envFloat64Or("ALMA_LLM_TEMPERATURE", 0.7),
		LLMTopP:             envFloat64Or("ALMA_LLM_TOP_P", 0.9),
		SystemPrompt:        envOr("ALMA_SYSTEM_PROMPT", DefaultSystemPrompt),
		WakePhrase:          envOr("ALMA_WAKE_PHRASE", "hola alma"),
		StopPhrases:         splitCSVOr("ALMA_STOP_PHRASES", []string{"gracias alma", "detente alma", "adiós alma", "hasta luego alma", "para alma"}),
		ResetPhrases:        splitCSVOr("ALMA_RESET_PHRASES", []string{"nueva conversación", "empezar de nuevo"}),
		DispatchDebounce:    envDurationOr("ALMA_DISPATCH_DEBOUNCE", 0),
		AckEveryN:           envIntOr("ALMA_AUDIO_ACK_EVERY", 10),
		StatsInterval:       envDurationOr("ALMA_STATS_INTERVAL", 2*time.Second),
		WSReadLimit:         envInt64Or("ALMA_WS_READ_LIMIT_BYTES", 512*1024),
		WSPingInterval:      envDurationOr("ALMA_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("ALMA_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:  envDurationOr("ALMA_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		OutboundQueueSize:   envIntOr("ALMA_WS_OUTBOUND_QUEUE", 128),
		CORSAllowedOrigins:  make(map[string]struct{}),
		ReadHeaderTimeout:   envDurationOr("ALMA_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("ALMA_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("ALMA_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.LLMBaseURL) == "" {
		return Config{}, fmt.Errorf("ALMA_LLM_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.LLMModel) == "" {
		return Config{}, fmt.Errorf("ALMA_LLM_MODEL must not be empty")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("ALMA_LLM_MAX_TOKENS must be > 0")
	}
	if strings.TrimSpace(cfg.AudioDir) == "" {
		return Config{}, fmt.Errorf("ALMA_AUDIO_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.TranscriptDir) == "" {
		return Config{}, fmt.Errorf("ALMA_TRANSCRIPT_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.WakePhrase) == "" {
		return Config{}, fmt.Errorf("ALMA_WAKE_PHRASE must not be empty")
	}
	if len(cfg.StopPhrases) == 0 {
		return Config{}, fmt.Errorf("ALMA_STOP_PHRASES must not be empty")
	}
	if cfg.DispatchDebounce < 0 {
		return Config{}, fmt.Errorf("ALMA_DISPATCH_DEBOUNCE must be >= 0")
	}
	if cfg.AckEveryN <= 0 {
		return Config{}, fmt.Errorf("ALMA_AUDIO_ACK_EVERY must be > 0")
	}
	if cfg.StatsInterval <= 0 {
		return Config{}, fmt.Errorf("ALMA_STATS_INTERVAL must be > 0")
	}
	if cfg.WSReadLimit <= 0 {
		return Config{}, fmt.Errorf("ALMA_WS_READ_LIMIT_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("ALMA_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("ALMA_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("ALMA_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("ALMA_WS_OUTBOUND_QUEUE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("ALMA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("ALMA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func splitCSVOr(key string, def []string) []string {
	if v := splitCSV(os.Getenv(key)); len(v) > 0 {
		return v
	}
	return def
}
