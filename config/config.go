// Package config loads runtime configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the translator process needs at startup.
type Config struct {
	// ServerAddr is the listen address of the HTTP and websocket API.
	ServerAddr string
	// MetricsAddr is the listen address of the Prometheus endpoint.
	MetricsAddr string

	// DatabaseURL is the Postgres DSN for the durable transcript log.
	// Empty means transcripts are kept in memory only.
	DatabaseURL string

	// OpenAIAPIKey authenticates against the translation provider.
	// Empty means a dictionary stub is used instead.
	OpenAIAPIKey string
	// OpenAIModel selects the chat model used for translation.
	OpenAIModel string

	// SourceURL is an optional upstream caption websocket to ingest
	// from. Empty means segments arrive only through the ingest API.
	SourceURL string
	// SourceLang is the language of segments read from SourceURL.
	SourceLang string
	// SourceTargets are the languages translated for SourceURL sessions.
	SourceTargets []string

	// SlotTimeout bounds how long a reorder slot waits for its
	// translation before a skip marker is emitted.
	SlotTimeout time.Duration
	// TranslateTimeout bounds a single translation attempt.
	TranslateTimeout time.Duration
	// EndGracePeriod bounds the in-flight drain when a session ends.
	EndGracePeriod time.Duration

	// BacklogSize is the per-channel replay buffer for late joiners.
	BacklogSize int
	// SubscriberQueue is the per-subscriber outbound queue size.
	SubscriberQueue int
	// LoggerQueueSize bounds the durable logger's pending queue.
	LoggerQueueSize int
	// LoggerBatchSize is the durable logger's flush batch size.
	LoggerBatchSize int
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "config: skipping .env: %v\n", err)
	}

	return Config{
		ServerAddr:  getEnv("TRANSLATOR_SERVER_ADDR", ":8080"),
		MetricsAddr: getEnv("TRANSLATOR_METRICS_ADDR", ":9090"),

		DatabaseURL: os.Getenv("TRANSLATOR_DATABASE_URL"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		SourceURL:     os.Getenv("TRANSLATOR_SOURCE_URL"),
		SourceLang:    getEnv("TRANSLATOR_SOURCE_LANG", "en"),
		SourceTargets: splitList(getEnv("TRANSLATOR_SOURCE_TARGETS", "es")),

		SlotTimeout:      getDurationEnv("TRANSLATOR_SLOT_TIMEOUT", 15*time.Second),
		TranslateTimeout: getDurationEnv("TRANSLATOR_TRANSLATE_TIMEOUT", 4*time.Second),
		EndGracePeriod:   getDurationEnv("TRANSLATOR_END_GRACE", 10*time.Second),

		BacklogSize:     getIntEnv("TRANSLATOR_BACKLOG_SIZE", 32),
		SubscriberQueue: getIntEnv("TRANSLATOR_SUBSCRIBER_QUEUE", 64),
		LoggerQueueSize: getIntEnv("TRANSLATOR_LOGGER_QUEUE", 1024),
		LoggerBatchSize: getIntEnv("TRANSLATOR_LOGGER_BATCH", 64),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "config: invalid duration for %s: %q\n", key, value)
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		fmt.Fprintf(os.Stderr, "config: invalid integer for %s: %q\n", key, value)
		return fallback
	}
	return n
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
