package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by KOS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("KOS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// LLMProvider returns the configured extraction provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingModel overrides the default embedding model when set.
func EmbeddingModel() string {
	return os.Getenv("EMBEDDING_MODEL")
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// MaintenanceInterval is how often the decay pass runs.
func MaintenanceInterval() time.Duration {
	return durationEnv("MAINTENANCE_INTERVAL", time.Hour)
}

// EvaluatorInterval is how often the strategy evaluator runs.
func EvaluatorInterval() time.Duration {
	return durationEnv("EVALUATOR_INTERVAL", 6*time.Hour)
}

// EvaluatorWindow is the outcome window the evaluator aggregates over.
func EvaluatorWindow() time.Duration {
	return durationEnv("EVALUATOR_WINDOW", 7*24*time.Hour)
}

// WindowMonitorInterval is how often in-progress proposals are checked.
func WindowMonitorInterval() time.Duration {
	return durationEnv("WINDOW_MONITOR_INTERVAL", 15*time.Minute)
}

// OutboxPollInterval is the worker poll cadence.
func OutboxPollInterval() time.Duration {
	return durationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second)
}

// OutboxWorkers is the number of concurrent outbox consumers.
// Defaults to 2 if not set.
func OutboxWorkers() int {
	n, err := strconv.Atoi(os.Getenv("OUTBOX_WORKERS"))
	if err != nil || n <= 0 {
		return 2
	}
	return n
}

// OutboxBatchSize is how many events one poll claims.
// Defaults to 25 if not set.
func OutboxBatchSize() int {
	n, err := strconv.Atoi(os.Getenv("OUTBOX_BATCH_SIZE"))
	if err != nil || n <= 0 {
		return 25
	}
	return n
}

func durationEnv(name string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
