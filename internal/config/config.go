// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Task store backends.
const (
	TaskStoreNATS   = "nats"
	TaskStoreMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Storage
	TaskStore  string
	TaskBucket string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string

	// Agent settings
	HistoryWindow     int
	ToolTimeout       time.Duration
	ClassifierEnabled bool
	ClassifierTimeout time.Duration
	ClassifierModel   string
	ConfirmUpdates    bool

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	anthropicKey := getEnv("ANTHROPIC_API_KEY", "")
	openAIKey := getEnv("OPENAI_API_KEY", "")

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Storage
		TaskStore:  getEnv("TASK_STORE", TaskStoreNATS),
		TaskBucket: getEnv("TASK_BUCKET", "TASKS"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: anthropicKey,
		OpenAIAPIKey:    openAIKey,
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),

		// Agent
		HistoryWindow:     getIntEnv("AGENT_HISTORY_WINDOW", 10),
		ToolTimeout:       getDurationEnv("AGENT_TOOL_TIMEOUT", 500*time.Millisecond),
		ClassifierEnabled: getBoolEnv("AGENT_CLASSIFIER_ENABLED", anthropicKey != "" || openAIKey != ""),
		ClassifierTimeout: getDurationEnv("AGENT_CLASSIFIER_TIMEOUT", 3*time.Second),
		ClassifierModel:   getEnv("AGENT_CLASSIFIER_MODEL", ""),
		ConfirmUpdates:    getBoolEnv("AGENT_CONFIRM_UPDATES", false),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports settings that would prevent the server from starting.
func (c *Config) Validate() error {
	switch c.TaskStore {
	case TaskStoreNATS, TaskStoreMemory:
	default:
		return fmt.Errorf("TASK_STORE must be %q or %q, got %q", TaskStoreNATS, TaskStoreMemory, c.TaskStore)
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("AGENT_HISTORY_WINDOW must be positive, got %d", c.HistoryWindow)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("AGENT_TOOL_TIMEOUT must be positive, got %s", c.ToolTimeout)
	}
	if c.ClassifierEnabled && c.LLMKey() == "" {
		return fmt.Errorf("AGENT_CLASSIFIER_ENABLED requires an API key for %s", c.DefaultLLM)
	}
	return nil
}

// LLMKey returns the API key for the configured default provider.
func (c *Config) LLMKey() string {
	if c.DefaultLLM == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
