// Package server provides configuration helpers that define runtime defaults,
// environment loading, and command-line flags for the GoHub service.
package server

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/gohub/internal/hub"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including hub policies.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	Hub            hub.Config
	DrainTimeout   time.Duration
	LogLevel       string
	LogFile        string
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Hub:          hub.DefaultConfig(),
		DrainTimeout: 10 * time.Second,
		LogLevel:     "info",
	}
}

// Sanitize replaces unusable values with defaults.
func (c Config) Sanitize() Config {
	defaults := defaultConfig()

	if c.Port == "" {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if c.Hub.OutboxSize <= 0 {
		c.Hub.OutboxSize = defaults.Hub.OutboxSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaults.DrainTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables,
// reading a .env file first when one exists. Unset or invalid variables
// keep their defaults.
func NewConfigFromEnv() *Config {
	if err := loadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file; using environment only")
	}

	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}

	if size := os.Getenv("OUTBOX_SIZE"); size != "" {
		cfg.Hub.OutboxSize = parseIntValue(size, cfg.Hub.OutboxSize)
	}
	if maxClients := os.Getenv("MAX_CLIENTS"); maxClients != "" {
		cfg.Hub.MaxClients = parseIntValue(maxClients, cfg.Hub.MaxClients)
	}
	if echo := os.Getenv("ECHO_TO_SENDER"); echo != "" {
		cfg.Hub.EchoToSender = parseBool(echo, cfg.Hub.EchoToSender)
	}
	if reject := os.Getenv("REJECT_DUPLICATE_JOIN"); reject != "" {
		cfg.Hub.RejectDuplicateJoin = parseBool(reject, cfg.Hub.RejectDuplicateJoin)
	}
	if drops := os.Getenv("MAX_CONSECUTIVE_DROPS"); drops != "" {
		cfg.Hub.MaxConsecutiveDrops = parseIntValue(drops, cfg.Hub.MaxConsecutiveDrops)
	}
	if timeout := os.Getenv("DRAIN_TIMEOUT"); timeout != "" {
		cfg.DrainTimeout = parseDuration(timeout, cfg.DrainTimeout)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.LogFile = file
	}

	return &cfg
}

// loadDotEnv loads .env files into the environment. A missing file is not
// an error.
func loadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// BindFlags registers command-line flags that override the loaded values.
func (c *Config) BindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Port, "port", c.Port, "Listen address, e.g. :8080")
	cmd.Flags().StringSliceVar(&c.AllowedOrigins, "allowed-origins", c.AllowedOrigins, "Origins allowed to open WebSocket connections (* allows all)")
	cmd.Flags().Int64Var(&c.MaxMessageSize, "max-message-size", c.MaxMessageSize, "Maximum inbound message size in bytes")
	cmd.Flags().IntVar(&c.RateLimit.Burst, "rate-limit-burst", c.RateLimit.Burst, "Messages a connection may send per refill interval")
	cmd.Flags().DurationVar(&c.RateLimit.RefillInterval, "rate-limit-interval", c.RateLimit.RefillInterval, "Rate limit refill interval")

	cmd.Flags().IntVar(&c.Hub.OutboxSize, "outbox-size", c.Hub.OutboxSize, "Per-client outbox capacity")
	cmd.Flags().IntVar(&c.Hub.MaxClients, "max-clients", c.Hub.MaxClients, "Maximum concurrent clients (0 = unlimited)")
	cmd.Flags().BoolVar(&c.Hub.EchoToSender, "echo", c.Hub.EchoToSender, "Deliver published messages back to their sender")
	cmd.Flags().BoolVar(&c.Hub.RejectDuplicateJoin, "reject-duplicate-join", c.Hub.RejectDuplicateJoin, "Fail joins of channels the client already belongs to")
	cmd.Flags().IntVar(&c.Hub.MaxConsecutiveDrops, "max-consecutive-drops", c.Hub.MaxConsecutiveDrops, "Disconnect clients after this many dropped deliveries in a row (0 = never)")
	cmd.Flags().DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "How long shutdown waits for in-flight work")

	cmd.Flags().StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (trace, debug, info, warn, error)")
	cmd.Flags().StringVar(&c.LogFile, "log-file", c.LogFile, "Also write JSON logs to this rotated file")
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go durations ("1500ms") or whole seconds ("2").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
