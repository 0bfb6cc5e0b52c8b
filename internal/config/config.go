package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	LiveBroker    string
	FAQCacheTTL   time.Duration

	LLMProvider           string
	LLMFallbackProvider   string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIClassifierModel string
	OpenAIModel           string
	GeminiAPIKey          string
	GeminiModel           string
	BedrockModelID        string
	AWSRegion             string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpointOverride   string
	LLMTimeout            time.Duration
	LLMMaxRetries         int
	LLMRetryBackoff       time.Duration

	HistoryLimit      int
	CallTZName        string
	CallTZOffsetHours int
	AssistantName     string

	AdminJWTSecret     string
	AdminActiveWindow  time.Duration
	CORSAllowedOrigins []string
	ChatRateLimitRPS   float64
	ChatRateLimitBurst int

	EmailProvider    string
	SendGridAPIKey   string
	EmailFrom        string
	EmailFromName    string
	AdminNotifyEmail string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		LiveBroker:    strings.ToLower(strings.TrimSpace(getEnv("LIVE_BROKER", "memory"))),
		FAQCacheTTL:   getEnvAsDuration("FAQ_CACHE_TTL", 5*time.Minute),

		LLMProvider:           strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider:   strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIClassifierModel: getEnv("OPENAI_CLASSIFIER_MODEL", "gpt-5"),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		LLMTimeout:            getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		LLMMaxRetries:         getEnvAsInt("LLM_MAX_RETRIES", 2),
		LLMRetryBackoff:       getEnvAsDuration("LLM_RETRY_BACKOFF", 250*time.Millisecond),

		HistoryLimit:      getEnvAsInt("HISTORY_LIMIT", 5),
		CallTZName:        getEnv("CALL_TZ_NAME", "SGT"),
		CallTZOffsetHours: getEnvAsInt("CALL_TZ_OFFSET_HOURS", 8),
		AssistantName:     getEnv("ASSISTANT_NAME", "May"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		AdminActiveWindow:  getEnvAsDuration("ADMIN_ACTIVE_WINDOW", 5*time.Minute),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ChatRateLimitRPS:   getEnvAsFloat("CHAT_RATE_LIMIT_RPS", 2),
		ChatRateLimitBurst: getEnvAsInt("CHAT_RATE_LIMIT_BURST", 10),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:        getEnv("EMAIL_FROM", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Havana Support"),
		AdminNotifyEmail: getEnv("ADMIN_NOTIFY_EMAIL", ""),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
