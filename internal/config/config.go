package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the exchange.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// TradeTapeSize bounds the in-memory recent-trades tape per pair.
	TradeTapeSize int
	// SinkTimeout bounds a single trade delivery to the external sinks.
	SinkTimeout time.Duration

	// Optional sinks. An empty value disables the sink.
	KafkaBrokers    []string
	KafkaTradeTopic string
	RedisAddr       string
	RedisDB         int
	RedisTradeKeep  int
	PostgresDSN     string
	WebhookURL      string
	WebhookTimeout  time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	tapeSize, err := getInt("TRADE_TAPE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid TRADE_TAPE_SIZE: %w", err)
	}
	if tapeSize < 1 {
		return nil, fmt.Errorf("invalid TRADE_TAPE_SIZE: %d, must be positive", tapeSize)
	}

	sinkTimeout, err := getDuration("SINK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SINK_TIMEOUT: %w", err)
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	redisKeep, err := getInt("REDIS_TRADE_KEEP", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_TRADE_KEEP: %w", err)
	}
	if redisKeep < 1 {
		return nil, fmt.Errorf("invalid REDIS_TRADE_KEEP: %d, must be positive", redisKeep)
	}

	webhookURL := getStr("TRADE_WEBHOOK_URL", "")
	if webhookURL != "" {
		u, err := url.Parse(webhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid TRADE_WEBHOOK_URL: %q, must be an absolute http(s) URL", webhookURL)
		}
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
		TradeTapeSize:   tapeSize,
		SinkTimeout:     sinkTimeout,
		KafkaBrokers:    getList("KAFKA_BROKERS"),
		KafkaTradeTopic: getStr("KAFKA_TRADE_TOPIC", "trades"),
		RedisAddr:       getStr("REDIS_ADDR", ""),
		RedisDB:         redisDB,
		RedisTradeKeep:  redisKeep,
		PostgresDSN:     getStr("POSTGRES_DSN", ""),
		WebhookURL:      webhookURL,
		WebhookTimeout:  webhookTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated variable, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
