package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every runtime setting. It is loaded and validated once in main;
// nothing below the wiring layer reads the environment directly.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	MetricsNamespace string

	// Storage. DatabaseURL selects the Postgres backend; when empty the
	// service falls back to a local SQLite file at SQLitePath.
	DatabaseURL    string
	SupabaseSchema string
	SQLitePath     string

	// Redis (optional, nil-safe everywhere it is used).
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// Billing provider.
	StripeSecretKey     string
	StripeWebhookSecret string

	// Language-model provider.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Voice provider.
	RetellAPIKey  string
	RetellBaseURL string
	RetellTimeout time.Duration

	// Supabase auth/storage.
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	ReceiptBucket      string

	// WhatsApp Cloud API.
	WhatsAppVerifyToken   string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppAPIBaseURL    string
}

// Load reads configuration from the environment and validates required keys.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:           get("APP_ENV", "development"),
		LogLevel:         get("LOG_LEVEL", "info"),
		HTTPListenAddr:   get("HTTP_LISTEN_ADDR", ":"+get("PORT", "8080")),
		MetricsNamespace: get("METRICS_NAMESPACE", "assistant"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SupabaseSchema: get("SUPABASE_SCHEMA", "public"),
		SQLitePath:     get("SQLITE_PATH", "data/assistant.db"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		RedisTLS:      getBool("REDIS_TLS", false),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   get("OPENAI_MODEL", "gpt-4o-mini"),

		RetellAPIKey:  os.Getenv("RETELL_API_KEY"),
		RetellBaseURL: get("RETELL_BASE_URL", "https://api.retellai.com"),
		RetellTimeout: getDuration("RETELL_TIMEOUT", 30*time.Second),

		SupabaseURL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseJWTSecret:  os.Getenv("SUPABASE_JWT_SECRET"),
		ReceiptBucket:      get("RECEIPT_BUCKET", "receipts"),

		WhatsAppVerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		WhatsAppPhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppAPIBaseURL:    get("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
	}

	var missing []string
	for _, req := range []struct{ key, val string }{
		{"STRIPE_SECRET_KEY", cfg.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", cfg.StripeWebhookSecret},
		{"OPENAI_API_KEY", cfg.OpenAIAPIKey},
		{"RETELL_API_KEY", cfg.RetellAPIKey},
		{"SUPABASE_URL", cfg.SupabaseURL},
		{"SUPABASE_SERVICE_KEY", cfg.SupabaseServiceKey},
		{"SUPABASE_JWT_SECRET", cfg.SupabaseJWTSecret},
		{"WHATSAPP_VERIFY_TOKEN", cfg.WhatsAppVerifyToken},
		{"WHATSAPP_ACCESS_TOKEN", cfg.WhatsAppAccessToken},
		{"WHATSAPP_PHONE_NUMBER_ID", cfg.WhatsAppPhoneNumberID},
	} {
		if req.val == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
