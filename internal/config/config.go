// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	Telephony     TelephonyConfig
	Model         ModelConfig
	SessionLimits SessionLimitsConfig
	Transport     TransportConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal    string
	Env          string
	HTTPPort     string
	GRPCPort     string
	PublicDomain string // host used to build the media stream callback URL
}

// TelephonyConfig holds call-control provider settings.
type TelephonyConfig struct {
	APIKey      string
	APIBaseURL  string
	Codec       string // PCMU or PCMA
	StreamTrack string
}

// ModelConfig holds realtime model provider settings.
type ModelConfig struct {
	Provider string // openai or mock
	APIKey   string
	URL      string
	Name     string
	Voice    string
}

// SessionLimitsConfig bounds a single call session.
type SessionLimitsConfig struct {
	StartTimeout time.Duration
	MaxDuration  time.Duration
	ToolTimeout  time.Duration
}

// TransportConfig holds websocket tuning.
type TransportConfig struct {
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// KafkaConfig holds call event publishing settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicCalls       string
	TopicTranscripts string
	Principal        string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// Missing .env is the normal case in deployed environments.
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-relay")

	return &Config{
		Service: ServiceConfig{
			Principal:    principal,
			Env:          envOrDefault("ENV", "prod"),
			HTTPPort:     envOrDefault("HTTP_PORT", "8000"),
			GRPCPort:     envOrDefault("GRPC_PORT", "50051"),
			PublicDomain: os.Getenv("PUBLIC_DOMAIN"),
		},
		Telephony: TelephonyConfig{
			APIKey:      os.Getenv("TELNYX_API_KEY"),
			APIBaseURL:  envOrDefault("TELEPHONY_API_URL", "https://api.telnyx.com/v2"),
			Codec:       codecOrDefault(os.Getenv("TELEPHONY_CODEC"), "PCMU"),
			StreamTrack: envOrDefault("TELEPHONY_STREAM_TRACK", "inbound_track"),
		},
		Model: ModelConfig{
			Provider: strings.ToLower(envOrDefault("MODEL_PROVIDER", "openai")),
			APIKey:   os.Getenv("OPENAI_API_KEY"),
			URL:      envOrDefault("MODEL_URL", "wss://api.openai.com/v1/realtime"),
			Name:     envOrDefault("MODEL_NAME", "gpt-4o-realtime-preview"),
			Voice:    envOrDefault("MODEL_VOICE", "alloy"),
		},
		SessionLimits: SessionLimitsConfig{
			StartTimeout: envOrDefaultDuration("SESSION_START_TIMEOUT", 10*time.Second),
			MaxDuration:  envOrDefaultDuration("SESSION_MAX_DURATION", 30*time.Minute),
			ToolTimeout:  envOrDefaultDuration("TOOL_TIMEOUT", 15*time.Second),
		},
		Transport: TransportConfig{
			WriteTimeout:    envOrDefaultDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			MaxMessageBytes: envOrDefaultInt64("WS_MAX_MESSAGE_BYTES", 1<<20),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicCalls:       envOrDefault("KAFKA_TOPIC_CALLS", "voice.relay.call"),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "voice.relay.transcript"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

// AudioFormat maps the negotiated telephony codec to the model's audio format name.
func (t TelephonyConfig) AudioFormat() string {
	if t.Codec == "PCMA" {
		return "g711_alaw"
	}
	return "g711_ulaw"
}

func codecOrDefault(v, def string) string {
	switch strings.ToUpper(v) {
	case "PCMU":
		return "PCMU"
	case "PCMA":
		return "PCMA"
	default:
		return def
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// envList splits a comma separated value, dropping empty entries.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
