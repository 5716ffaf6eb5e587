// Package config provides configuration for the orchestration core.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the orchestration core configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Storage
	DatabaseURL string
	AgentsFile  string
	WatchAgents bool

	// Governance log and delivery channels
	GovernanceLogPath string
	TriggerDir        string
	RedisAddr         string

	// Backend endpoints
	SandboxRoot    string
	RepoRoot       string
	CIWebhookURL   string
	ProvisionerURL string
	DBDriver       string
	DBDSN          string

	// Timeouts
	BackendTimeout      time.Duration
	HealthCheckInterval time.Duration

	// Rate limiting for instruction submission (0 disables)
	SubmitRate  float64
	SubmitBurst int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:            getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:         getEnv("DATABASE_URL", "file:orchestrator.db?cache=shared&mode=rwc"),
		AgentsFile:          getEnv("AGENTS_FILE", "agents.yaml"),
		WatchAgents:         getEnvBool("WATCH_AGENTS", false),
		GovernanceLogPath:   getEnv("GOVERNANCE_LOG_PATH", "logs/governance.jsonl"),
		TriggerDir:          getEnv("TRIGGER_DIR", "triggers"),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		SandboxRoot:         getEnv("SANDBOX_ROOT", "workspace"),
		RepoRoot:            getEnv("REPO_ROOT", "."),
		CIWebhookURL:        getEnv("CI_WEBHOOK_URL", ""),
		ProvisionerURL:      getEnv("PROVISIONER_URL", ""),
		DBDriver:            getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:               getEnv("DB_DSN", "file:backend.db?cache=shared&mode=rwc"),
		BackendTimeout:      time.Duration(getEnvInt("BACKEND_TIMEOUT_MS", 30000)) * time.Millisecond,
		HealthCheckInterval: time.Duration(getEnvInt("HEALTH_CHECK_INTERVAL_MS", 30000)) * time.Millisecond,
		SubmitRate:          getEnvFloat("SUBMIT_RATE", 0),
		SubmitBurst:         getEnvInt("SUBMIT_BURST", 5),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
