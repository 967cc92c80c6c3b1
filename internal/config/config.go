package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string

	// telegram
	TelegramToken      string
	TelegramAPIBase    string
	PollTimeoutSeconds int
	WebhookURL         string
	WebhookSecret      string
	HTTPAddr           string
	AdminIDs           []int64

	// storage
	DBDriver      string
	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	ChatContextWindowSize int
	SystemPrompt          string
	DefaultModel          string

	// AI providers
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// image generation
	ImageModel            string
	ImageSize             string
	ImageQualitySelection bool

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
}

func Load() Config {
	// .env is optional; real deployments pass plain environment variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	windowSize := envInt("CHAT_CONTEXT_WINDOW_SIZE", 20)

	return Config{
		LogLevel: env("LOG_LEVEL", "info"),

		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:    env("TELEGRAM_API_BASE", "https://api.telegram.org"),
		PollTimeoutSeconds: envInt("POLL_TIMEOUT_SECONDS", 30),
		WebhookURL:         os.Getenv("WEBHOOK_URL"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		HTTPAddr:           env("HTTP_ADDR", ":8080"),
		AdminIDs:           parseIDs(os.Getenv("ADMIN_IDS")),

		DBDriver:      strings.ToLower(env("DB_DRIVER", "mysql")),
		DBDSN:         os.Getenv("DB_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		SessionTTL:    time.Duration(envInt("SESSION_TTL_HOURS", 24*30)) * time.Hour,

		ChatContextWindowSize: windowSize,
		SystemPrompt:          os.Getenv("SYSTEM_PROMPT"),
		DefaultModel:          env("DEFAULT_MODEL", "gpt-4o-mini"),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OllamaBaseURL:     os.Getenv("OLLAMA_BASE_URL"),
		OllamaModel:       env("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: env("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   env("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		ImageModel:            env("IMAGE_MODEL", "dall-e-3"),
		ImageSize:             env("IMAGE_SIZE", "1024x1024"),
		ImageQualitySelection: envBool("IMAGE_QUALITY_SELECTION", true),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       env("RABBIT_QUEUE", "bot_events"),
		WorkerConcurrency: workerConcurrency(),
	}
}

// RequireBot reports the settings without which the bot process must not start.
func (c Config) RequireBot() error {
	var missing []string
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireWorker reports the settings without which the analytics worker must not start.
func (c Config) RequireWorker() error {
	var missing []string
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if c.RabbitURL == "" {
		missing = append(missing, "RABBIT_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c Config) BotAPIBase() string {
	return fmt.Sprintf("%s/bot%s", strings.TrimRight(c.TelegramAPIBase, "/"), c.TelegramToken)
}

func workerConcurrency() int {
	n := envInt("WORKER_CONCURRENCY", 2)
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func parseIDs(v string) []int64 {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}
