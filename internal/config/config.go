package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type StoreDriver string

const (
	StoreFile     StoreDriver = "file"
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
	StoreR2       StoreDriver = "r2"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Port        string
	FrontendURL string

	GeminiAPIKey string
	GeminiModel  string

	GenerationTimeout    time.Duration
	QuestionMaxTokens    int32
	RemediationMaxTokens int32
	DefaultRequested     int
	MaxRequested         int
	IndexPolicy          string // keep|reject

	StoreDriver StoreDriver
	DataDir     string
	DatabaseURL string

	SessionSecret     string
	DiscordWebhookURL string

	R2AccountID       string
	R2Bucket          string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Prefix          string
}

func FromEnv() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		FrontendURL: envOr("FRONTEND_URL", "http://localhost:5173"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOr("GEMINI_MODEL", "gemini-2.0-flash"),

		GenerationTimeout:    envDuration("GENERATION_TIMEOUT", 25*time.Second),
		QuestionMaxTokens:    int32(envInt("QUESTION_MAX_TOKENS", 4096)),
		RemediationMaxTokens: int32(envInt("REMEDIATION_MAX_TOKENS", 2048)),
		DefaultRequested:     envInt("QUIZ_DEFAULT_REQUESTED", 6),
		MaxRequested:         envInt("QUIZ_MAX_REQUESTED", 20),
		IndexPolicy:          strings.ToLower(envOr("QUIZ_INDEX_POLICY", "keep")),

		StoreDriver: StoreDriver(strings.ToLower(envOr("STORE_DRIVER", string(StoreFile)))),
		DataDir:     envOr("DATA_DIR", "./data"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		SessionSecret:     os.Getenv("SESSION_SECRET"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),

		R2AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2Bucket:          os.Getenv("R2_BUCKET_NAME"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Prefix:          envOr("R2_PREFIX", "tests/"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("WARN: ignoring invalid %s=%q, using %d", k, v, def)
		return def
	}
	return n
}

// envDuration accepts Go durations ("30s") or a bare number of seconds.
func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Printf("WARN: ignoring invalid %s=%q, using %s", k, v, def)
	return def
}
