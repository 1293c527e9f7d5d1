// Where: internal/config/config.go
// What: Process settings loaded from the environment.
// Why: One place reads env vars; everything else takes typed settings.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings is the full process configuration.
type Settings struct {
	DatabasePath  string
	EncryptionKey string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ModelName     string
	Temperature   float32
	MaxTokens     int
	LLMTimeout    time.Duration

	TerraformBinary string
	TerraformRunner string // "local" or "docker"
	TerraformImage  string
	WorkRoot        string

	InitTimeout    time.Duration
	PlanTimeout    time.Duration
	ApplyTimeout   time.Duration
	DestroyTimeout time.Duration
}

// Load reads settings from the environment, applying defaults. A .env file,
// when present, is loaded by the CLI entrypoint before this runs.
func Load() Settings {
	return Settings{
		DatabasePath:  envString("IACPILOT_DB", "iacpilot.db"),
		EncryptionKey: envString("IACPILOT_ENCRYPTION_KEY", ""),

		OpenAIAPIKey:  envString("OPENAI_API_KEY", ""),
		OpenAIBaseURL: envString("OPENAI_API_BASE", ""),
		ModelName:     envString("OPENAI_MODEL_NAME", ""),
		Temperature:   float32(envFloat("OPENAI_TEMPERATURE", 0.7)),
		MaxTokens:     envInt("OPENAI_MAX_TOKENS", 4000),
		LLMTimeout:    envDuration("OPENAI_TIMEOUT_SECONDS", 60*time.Second),

		TerraformBinary: envString("TERRAFORM_BIN", ""),
		TerraformRunner: envString("TERRAFORM_RUNNER", "local"),
		TerraformImage:  envString("TERRAFORM_IMAGE", ""),
		WorkRoot:        envString("IACPILOT_WORK_DIR", ""),

		InitTimeout:    envDuration("TERRAFORM_INIT_TIMEOUT_SECONDS", 15*time.Minute),
		PlanTimeout:    envDuration("TERRAFORM_PLAN_TIMEOUT_SECONDS", 30*time.Minute),
		ApplyTimeout:   envDuration("TERRAFORM_APPLY_TIMEOUT_SECONDS", 30*time.Minute),
		DestroyTimeout: envDuration("TERRAFORM_DESTROY_TIMEOUT_SECONDS", 30*time.Minute),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
