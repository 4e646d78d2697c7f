package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the runtime settings of the storefront server.
type Config struct {
	Port         string
	Env          string
	DBDriver     string
	DBDSN        string
	SeedDemo     bool
	MediaDir     string
	LogFile      string
	JWTSecret    string
	TokenTTL     time.Duration
	SiteURL      string
	Currency     string
	CookieSecure bool

	MercadoPago MercadoPagoConfig
	Redis       RedisConfig
	S3          S3Config
}

// MercadoPagoConfig contains the payment gateway credentials.
type MercadoPagoConfig struct {
	AccessToken   string
	BaseURL       string
	WebhookSecret string
}

// RedisConfig is optional; an empty Addr keeps rate limiting in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// S3Config is optional; an empty Bucket stores images under MediaDir.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:        getEnv("DB_DSN", "storefront.db"),
		SeedDemo:     getEnvBool("SEED_DEMO", true),
		MediaDir:     getEnv("MEDIA_DIR", "./web/media"),
		LogFile:      getEnv("LOG_FILE", ""),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		SiteURL:      strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
		Currency:     getEnv("CURRENCY", "COP"),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),
	}

	cfg.MercadoPago = MercadoPagoConfig{
		AccessToken:   getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		BaseURL:       getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
		WebhookSecret: getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
	}

	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	cfg.S3 = S3Config{
		Bucket:          getEnv("S3_BUCKET", ""),
		Region:          getEnv("S3_REGION", "us-east-1"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		PublicURL:       strings.TrimRight(getEnv("S3_PUBLIC_URL", ""), "/"),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	var err error
	if cfg.TokenTTL, err = parseDurationEnv("TOKEN_TTL", "24h"); err != nil {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", cfg.DBDriver)
	}
	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return Config{}, errors.New("JWT_SECRET must be set in production")
		}
		cfg.JWTSecret = "dev-only-secret"
	}

	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Str("db_driver", cfg.DBDriver).
		Str("media_dir", cfg.MediaDir).
		Bool("redis", cfg.Redis.Addr != "").
		Bool("s3", cfg.S3.Bucket != "").
		Bool("gateway", cfg.MercadoPago.AccessToken != "").
		Msg("config loaded")
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
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

// parseDurationEnv reads key as a time.Duration, falling back to def when unset.
func parseDurationEnv(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be > 0")
	}
	return d, nil
}
