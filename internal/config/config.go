package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	HTTPAddr       string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	QRSecret       string
	BaseURL        string
	Currency       string
	RateLimit      int
	AllowedOrigins string
	S3             S3Config
	Razorpay       RazorpayConfig
	SMTP           SMTPConfig
	PubNub         PubNubConfig
	Geocoder       GeocoderConfig
	Logging        LoggingConfig
}

type S3Config struct {
	Endpoint       string
	PublicEndpoint string
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
}

type RazorpayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	UserID       string
}

type GeocoderConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

func Load() (*Config, error) {
	cfg := fromEnv()
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.QRSecret == "" {
		return nil, fmt.Errorf("QR_SECRET is required")
	}
	return cfg, nil
}

// LoadCLI reads the same environment as Load but only requires the
// database, for operator tooling that never signs tokens.
func LoadCLI() (*Config, error) {
	cfg := fromEnv()
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func fromEnv() *Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return &Config{
		Env:            getenv("APP_ENV", "dev"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		QRSecret:       os.Getenv("QR_SECRET"),
		BaseURL:        getenv("BASE_URL", ""),
		Currency:       strings.ToUpper(getenv("CURRENCY", "INR")),
		RateLimit:      getenvInt("RATE_LIMIT_PER_MINUTE", 300),
		AllowedOrigins: getenv("CORS_ALLOWED_ORIGINS", "*"),
		S3: S3Config{
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
			Bucket:         os.Getenv("S3_BUCKET"),
			AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			SecretKey:      os.Getenv("S3_SECRET_KEY"),
			Region:         getenv("S3_REGION", "us-east-1"),
			UseSSL:         getenvBool("S3_USE_SSL", true),
		},
		Razorpay: RazorpayConfig{
			BaseURL:   getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
			KeyID:     os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getenv("SMTP_FROM", "tickets@eventmitra.in"),
			FromName: getenv("SMTP_FROM_NAME", "EventMitra"),
		},
		PubNub: PubNubConfig{
			PublishKey:   os.Getenv("PUBNUB_PUBLISH_KEY"),
			SubscribeKey: os.Getenv("PUBNUB_SUBSCRIBE_KEY"),
			UserID:       getenv("PUBNUB_USER_ID", "eventmitra-api"),
		},
		Geocoder: GeocoderConfig{
			Endpoint: os.Getenv("GEOCODER_ENDPOINT"),
			Timeout:  getenvDuration("GEOCODER_TIMEOUT", 6*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
	}
}

// HasRazorpay reports whether gateway credentials are present.
func (c *Config) HasRazorpay() bool {
	return c != nil && c.Razorpay.KeyID != "" && c.Razorpay.KeySecret != ""
}

// HasSMTP reports whether outbound email is configured.
func (c *Config) HasSMTP() bool {
	return c != nil && c.SMTP.Host != ""
}

// HasPubNub reports whether the live check-in feed is configured.
func (c *Config) HasPubNub() bool {
	return c != nil && c.PubNub.PublishKey != "" && c.PubNub.SubscribeKey != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return parsed
}
