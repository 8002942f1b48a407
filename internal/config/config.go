package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultAvatarURL = "https://res.cloudinary.com/dpfmmqggy/image/upload/v1740409752/Profile.png"

// Config contains runtime configuration values.
type Config struct {
	Environment   string
	HTTPPort      string
	ServiceName   string
	DatabaseURL   string
	RunMigrations bool

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	JWTSecret      string
	TokenIssuer    string
	AccessTokenTTL time.Duration

	OTPTTL         time.Duration
	PendingTTL     time.Duration
	ResendCooldown time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailTimeout  time.Duration

	GoogleClientID string
	GoogleJWKSURL  string

	DefaultAvatarURL string

	Argon2Time     uint32
	Argon2MemoryKB uint32
	Argon2Threads  uint8

	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:   getEnv("APP_ENV", "development"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		ServiceName:   getEnv("SERVICE_NAME", "echowrite"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RunMigrations: getBool("RUN_MIGRATIONS", true),

		RedisAddr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "echowrite:"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenIssuer:    getEnv("TOKEN_ISSUER", "echowrite"),
		AccessTokenTTL: getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),

		OTPTTL:         getDuration("OTP_TTL", 5*time.Minute),
		PendingTTL:     getDuration("PENDING_TTL", 5*time.Minute),
		ResendCooldown: getDuration("RESEND_COOLDOWN", 30*time.Second),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 465),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     os.Getenv("MAIL_FROM"),
		MailTimeout:  getDuration("MAIL_TIMEOUT", 15*time.Second),

		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleJWKSURL:  getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),

		DefaultAvatarURL: getEnv("DEFAULT_AVATAR_URL", defaultAvatarURL),

		Argon2Time:     uint32(getInt("ARGON2_TIME", 3)),
		Argon2MemoryKB: uint32(getInt("ARGON2_MEMORY_KB", 64*1024)),
		Argon2Threads:  uint8(getInt("ARGON2_THREADS", 2)),

		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUsername
	}
	if cfg.Environment != "development" && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required outside development")
	}
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
