// Package config loads server settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = "8080"
	defaultStaleAfter       = 30 * time.Second
	defaultSweepInterval    = 5 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultMaxMessageSize   = 1024
	defaultSendBufferSize   = 256
	defaultMessageRateLimit = 20
	defaultRateWindow       = time.Second
	defaultPresenceQueue    = 256
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Port string `yaml:"port"`

	StaleAfter     time.Duration `yaml:"stale_after"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	ResyncInterval time.Duration `yaml:"resync_interval"`

	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBufferSize int           `yaml:"send_buffer_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	MessageRateLimit int           `yaml:"message_rate_limit"`
	RateWindow       time.Duration `yaml:"rate_window"`

	MediaDir string `yaml:"media_dir"`

	PresenceTable     string `yaml:"presence_table"`
	PresenceQueueSize int    `yaml:"presence_queue_size"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Port:              defaultPort,
		StaleAfter:        defaultStaleAfter,
		SweepInterval:     defaultSweepInterval,
		WriteWait:         defaultWriteWait,
		PongWait:          defaultPongWait,
		MaxMessageSize:    defaultMaxMessageSize,
		SendBufferSize:    defaultSendBufferSize,
		AllowedOrigins:    []string{"*"},
		MessageRateLimit:  defaultMessageRateLimit,
		RateWindow:        defaultRateWindow,
		PresenceQueueSize: defaultPresenceQueue,
		LogLevel:          "info",
		LogFormat:         "production",
	}
}

// Load builds the config. path may be empty to skip the YAML file. A missing
// .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func (c Config) Validate() error {
	var problems []string
	if c.Port == "" {
		problems = append(problems, "port is empty")
	}
	if c.StaleAfter <= 0 {
		problems = append(problems, "stale_after must be positive")
	}
	if c.SweepInterval <= 0 {
		problems = append(problems, "sweep_interval must be positive")
	}
	if c.SweepInterval > c.StaleAfter {
		problems = append(problems, "sweep_interval must not exceed stale_after")
	}
	if c.ResyncInterval < 0 {
		problems = append(problems, "resync_interval must not be negative")
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 {
		problems = append(problems, "write_wait and pong_wait must be positive")
	}
	if c.MaxMessageSize <= 0 {
		problems = append(problems, "max_message_size must be positive")
	}
	if c.SendBufferSize <= 0 {
		problems = append(problems, "send_buffer_size must be positive")
	}
	if c.MessageRateLimit < 0 {
		problems = append(problems, "message_rate_limit must not be negative")
	}
	if c.MessageRateLimit > 0 && c.RateWindow <= 0 {
		problems = append(problems, "rate_window must be positive when rate limiting")
	}
	switch c.LogFormat {
	case "production", "development":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q must be production or development", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.MediaDir, "MEDIA_DIR")
	setString(&cfg.PresenceTable, "PRESENCE_TABLE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"STALE_AFTER", &cfg.StaleAfter},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
		{"RESYNC_INTERVAL", &cfg.ResyncInterval},
		{"WRITE_WAIT", &cfg.WriteWait},
		{"PONG_WAIT", &cfg.PongWait},
		{"RATE_WINDOW", &cfg.RateWindow},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SEND_BUFFER_SIZE", &cfg.SendBufferSize},
		{"MESSAGE_RATE_LIMIT", &cfg.MessageRateLimit},
		{"PRESENCE_QUEUE_SIZE", &cfg.PresenceQueueSize},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("MAX_MESSAGE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse MAX_MESSAGE_SIZE: %w", err)
		}
		cfg.MaxMessageSize = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
