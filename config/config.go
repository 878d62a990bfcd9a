// Package config provides configuration for the desktop driver service.
package config

import (
	"os"
	"strconv"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Evidence
	EvidenceDir       string
	EvidenceQueueSize int

	// Safety
	SafetyPolicyPath string

	// Execution
	WorkDir        string
	MaxSteps       int
	MaxStepRetries int
	MaxReplans     int
	DisableVision  bool

	// Replanner LLM endpoint. An empty base URL disables replanning.
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMTimeoutSeconds int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:deskdriver.db?cache=shared&mode=rwc"),
		EvidenceDir:       getEnv("EVIDENCE_DIR", "evidence"),
		EvidenceQueueSize: getEnvInt("EVIDENCE_QUEUE_SIZE", 1024),
		SafetyPolicyPath:  getEnv("SAFETY_POLICY_PATH", ""),
		WorkDir:           getEnv("WORK_DIR", defaultWorkDir()),
		MaxSteps:          getEnvInt("MAX_STEPS", 25),
		MaxStepRetries:    getEnvInt("MAX_STEP_RETRIES", 2),
		MaxReplans:        getEnvInt("MAX_REPLANS", 2),
		DisableVision:     getEnvBool("DISABLE_VISION", false),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 60),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func defaultWorkDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
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

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
