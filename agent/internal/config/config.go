package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Wake strategies decide what, besides the heartbeat ticker, makes the agent
// check in early.
const (
	WakePoll  = "POLL"
	WakeRedis = "REDIS"
	WakeNATS  = "NATS"
)

type Config struct {
	ControllerURL     string
	Hostname          string
	LogLevel          string
	HeartbeatInterval time.Duration
	WorkDir           string
	StateFile         string
	JobTimeout        time.Duration
	AllowExec         bool

	WakeStrategy      string
	RedisAddress      string
	RedisPassword     string
	RedisDB           int
	NATSURLs          []string
	NATSSubjectPrefix string
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("agent")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("CONTROLLER_URL", "http://localhost:8080")
	v.SetDefault("HOSTNAME", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HEARTBEAT_SECONDS", 10)
	v.SetDefault("WORK_DIR", "/var/lib/deploybot/work")
	v.SetDefault("STATE_FILE", "./agent_state.json")
	v.SetDefault("JOB_TIMEOUT_SECONDS", 600)
	v.SetDefault("ALLOW_EXEC", true)
	v.SetDefault("WAKE_STRATEGY", WakePoll)
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NATS_URLS", "nats://localhost:4222")
	v.SetDefault("NATS_SUBJECT_PREFIX", "deploybot")

	// Try to read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := &Config{
		ControllerURL:     strings.TrimRight(v.GetString("CONTROLLER_URL"), "/"),
		Hostname:          strings.TrimSpace(v.GetString("HOSTNAME")),
		LogLevel:          v.GetString("LOG_LEVEL"),
		HeartbeatInterval: time.Duration(v.GetInt("HEARTBEAT_SECONDS")) * time.Second,
		WorkDir:           v.GetString("WORK_DIR"),
		StateFile:         v.GetString("STATE_FILE"),
		JobTimeout:        time.Duration(v.GetInt("JOB_TIMEOUT_SECONDS")) * time.Second,
		AllowExec:         v.GetBool("ALLOW_EXEC"),
		WakeStrategy:      strings.ToUpper(v.GetString("WAKE_STRATEGY")),
		RedisAddress:      v.GetString("REDIS_ADDRESS"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		NATSURLs:          splitList(v.GetString("NATS_URLS")),
		NATSSubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
	}

	if config.Hostname == "" {
		config.Hostname = getHostname()
	}
	if config.ControllerURL == "" {
		return nil, fmt.Errorf("CONTROLLER_URL is required")
	}
	if config.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("HEARTBEAT_SECONDS must be positive")
	}
	if config.JobTimeout <= 0 {
		return nil, fmt.Errorf("JOB_TIMEOUT_SECONDS must be positive")
	}
	switch config.WakeStrategy {
	case WakePoll, WakeRedis, WakeNATS:
	default:
		return nil, fmt.Errorf("unsupported wake strategy: %s", config.WakeStrategy)
	}

	return config, nil
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
