package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	GeminiAPIKey  string
	PrimaryModel  string
	FallbackModel string

	ModelTimeout     time.Duration
	ModelMaxRetries  int
	ModelTemperature float64
	ModelMaxTokens   int

	RateLimitPatientPerMin int
	RateLimitIPPerMin      int

	SafetyPolicyPath       string
	ConsultationPolicyPath string

	PseudonymSalt string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		PrimaryModel:  getEnv("AI_PRIMARY_MODEL", "gemini-2.5-flash"),
		FallbackModel: getEnv("AI_FALLBACK_MODEL", "gemini-2.0-flash"),

		ModelTimeout:     getEnvAsDuration("AI_MODEL_TIMEOUT", 15*time.Second),
		ModelMaxRetries:  getEnvAsInt("AI_MODEL_MAX_RETRIES", 2),
		ModelTemperature: getEnvAsFloat("AI_MODEL_TEMPERATURE", 0.2),
		ModelMaxTokens:   getEnvAsInt("AI_MODEL_MAX_TOKENS", 1024),

		RateLimitPatientPerMin: getEnvAsInt("RATE_LIMIT_PATIENT_PER_MIN", 12),
		RateLimitIPPerMin:      getEnvAsInt("RATE_LIMIT_IP_PER_MIN", 60),

		SafetyPolicyPath:       getEnv("SAFETY_POLICY_PATH", "config/safety_policies.yaml"),
		ConsultationPolicyPath: getEnv("CONSULTATION_POLICY_PATH", "config/consultation_age_policy.yaml"),

		PseudonymSalt: getEnv("AUDIT_PSEUDONYM_SALT", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
