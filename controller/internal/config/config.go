package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the controller's runtime configuration
type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	AdminUsername string
	AdminPassword string
	AgentStale    time.Duration

	SSHWorkDir        string
	SSHCommandTimeout time.Duration

	RedisEnabled  bool
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	NATSEnabled       bool
	NATSURLs          []string
	NATSSubjectPrefix string

	WebhookSecret string
	AppsConfig    string

	LaunchAIURL   string
	LaunchAIKey   string
	LaunchAIModel string
}

// LoadConfig reads an optional config.yaml from the working directory and
// lets environment variables override it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "./controller.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("AGENT_STALE_SECONDS", 30)
	v.SetDefault("SSH_WORK_DIR", "/tmp/deploybot")
	v.SetDefault("SSH_COMMAND_TIMEOUT_SECONDS", 300)
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NATS_ENABLED", false)
	v.SetDefault("NATS_URLS", "nats://localhost:4222")
	v.SetDefault("NATS_SUBJECT_PREFIX", "deploybot")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("APPS_CONFIG", "./config/apps.yaml")
	v.SetDefault("LAUNCH_AI_URL", "")
	v.SetDefault("LAUNCH_AI_KEY", "")
	v.SetDefault("LAUNCH_AI_MODEL", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Port:              v.GetString("PORT"),
		DBPath:            v.GetString("DB_PATH"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		AdminUsername:     v.GetString("ADMIN_USERNAME"),
		AdminPassword:     v.GetString("ADMIN_PASSWORD"),
		AgentStale:        time.Duration(v.GetInt("AGENT_STALE_SECONDS")) * time.Second,
		SSHWorkDir:        v.GetString("SSH_WORK_DIR"),
		SSHCommandTimeout: time.Duration(v.GetInt("SSH_COMMAND_TIMEOUT_SECONDS")) * time.Second,
		RedisEnabled:      v.GetBool("REDIS_ENABLED"),
		RedisAddress:      v.GetString("REDIS_ADDRESS"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		NATSEnabled:       v.GetBool("NATS_ENABLED"),
		NATSURLs:          splitList(v.GetString("NATS_URLS")),
		NATSSubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		WebhookSecret:     v.GetString("WEBHOOK_SECRET"),
		AppsConfig:        v.GetString("APPS_CONFIG"),
		LaunchAIURL:       v.GetString("LAUNCH_AI_URL"),
		LaunchAIKey:       v.GetString("LAUNCH_AI_KEY"),
		LaunchAIModel:     v.GetString("LAUNCH_AI_MODEL"),
	}

	if cfg.AgentStale <= 0 {
		return nil, fmt.Errorf("AGENT_STALE_SECONDS must be positive")
	}
	if cfg.SSHCommandTimeout <= 0 {
		return nil, fmt.Errorf("SSH_COMMAND_TIMEOUT_SECONDS must be positive")
	}
	return cfg, nil
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
