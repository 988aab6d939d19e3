package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port     string `env:"PORT" env-default:"8080"`
	Mode     string `env:"GIN_MODE" env-default:"debug"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	// Database configuration
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsAuto bool   `env:"DB_AUTO_MIGRATE" env-default:"true"`

	// Redis configuration
	RedisURL string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`

	// Telegram operator channel
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID      string `env:"TELEGRAM_CHAT_ID"`
	TelegramAPIURL      string `env:"TELEGRAM_API_URL" env-default:"https://api.telegram.org"`
	TelegramSecretToken string `env:"TELEGRAM_WEBHOOK_SECRET"`

	// Object storage for receipts and invoices
	StorageURL        string `env:"STORAGE_URL"`
	StorageServiceKey string `env:"STORAGE_SERVICE_KEY"`
	StorageBucket     string `env:"STORAGE_BUCKET" env-default:"comprobantes"`

	// Brevo email configuration
	BrevoAPIKey    string `env:"BREVO_API_KEY"`
	BrevoFromEmail string `env:"BREVO_FROM_EMAIL"`
	BrevoFromName  string `env:"BREVO_FROM_NAME" env-default:"Tienda de Recargas"`
	BrevoBaseURL   string `env:"BREVO_BASE_URL"`

	// Branding and store rules
	LogoURL               string   `env:"LOGO_URL"`
	StoreName             string   `env:"STORE_NAME" env-default:"Tienda de Recargas"`
	OperatorContactNumber string   `env:"OPERATOR_CONTACT_NUMBER"`
	LocalCurrency         string   `env:"LOCAL_CURRENCY" env-default:"VES"`
	RechargeGame          string   `env:"RECHARGE_GAME" env-default:"Recarga de Saldo"`
	FulfillmentGame       string   `env:"FULFILLMENT_GAME" env-default:"Free Fire"`
	NoReceiptGames        []string `env:"NO_RECEIPT_GAMES" env-separator:"," env-default:"Tarjeta de Regalo"`

	// Wallet endpoints
	JWTSecret string `env:"JWT_SECRET"`

	// Kafka lifecycle events, disabled when empty
	KafkaBrokers []string `env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" env-default:"topup.transactions"`

	// Submission rate limit per client IP
	SubmitRatePerSecond float64 `env:"SUBMIT_RATE_PER_SECOND" env-default:"1"`
	SubmitRateBurst     int     `env:"SUBMIT_RATE_BURST" env-default:"5"`
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	// Ignore error if .env file doesn't exist
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.LocalCurrency = strings.ToUpper(cfg.LocalCurrency)
	return &cfg, nil
}

// MissingForIntake lists the secrets the payment submission endpoint cannot run without
func (c *Config) MissingForIntake() []string {
	return missing(map[string]string{
		"TELEGRAM_BOT_TOKEN":      c.TelegramBotToken,
		"TELEGRAM_CHAT_ID":        c.TelegramChatID,
		"STORAGE_URL":             c.StorageURL,
		"STORAGE_SERVICE_KEY":     c.StorageServiceKey,
		"LOGO_URL":                c.LogoURL,
		"OPERATOR_CONTACT_NUMBER": c.OperatorContactNumber,
	})
}

// MissingForReconciliation lists the secrets the operator action endpoint needs
func (c *Config) MissingForReconciliation() []string {
	return missing(map[string]string{
		"TELEGRAM_BOT_TOKEN": c.TelegramBotToken,
		"BREVO_API_KEY":      c.BrevoAPIKey,
		"BREVO_FROM_EMAIL":   c.BrevoFromEmail,
	})
}

// IsNoReceiptGame reports whether receipts are never collected for game
func (c *Config) IsNoReceiptGame(game string) bool {
	for _, g := range c.NoReceiptGames {
		if strings.EqualFold(strings.TrimSpace(g), strings.TrimSpace(game)) {
			return true
		}
	}
	return false
}

func missing(values map[string]string) []string {
	var out []string
	for key, value := range values {
		if strings.TrimSpace(value) == "" {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
