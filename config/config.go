package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Redis      RedisConfig
	Mail       MailConfig
	Line       LineConfig
	Cloudinary CloudinaryConfig
	Firebase   FirebaseConfig
	Payment    PaymentConfig
	Calls      CallsConfig
	Scheduler  SchedulerConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AllowOrigins []string
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	VerifyExpiry  time.Duration
	ResetExpiry   time.Duration
	Issuer        string
}

// RedisConfig enables cross-instance realtime fan-out when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	SiteURL   string
	ClientURL string
}

// LineConfig holds the LINE Login channel credentials.
type LineConfig struct {
	ChannelID     string
	ChannelSecret string
	RedirectURL   string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

// PaymentConfig points at the card gateway used for point purchases and auto-charge.
type PaymentConfig struct {
	BaseURL  string
	APIKey   string
	Currency string
	Timeout  time.Duration
}

type CallsConfig struct {
	CollectWindow    time.Duration
	TenLeftLead      time.Duration
	NightStart       string
	NightEnd         string
	NightFund        int64
	TimeZone         string
	DefaultBackRatio int
}

type SchedulerConfig struct {
	CallControlSpec string
	CallNotifySpec  string
	PresentSpec     string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load reads .env (when present) and builds the configuration from defaults
// overridden by environment variables.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:         envString("PORT", "8099"),
			Env:          envString("APP_ENV", "development"),
			LogLevel:     envString("LOG_LEVEL", "info"),
			ReadTimeout:  envDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: envDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			AllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			DSN:             envString("DATABASE_DSN", "callcast:callcast@tcp(localhost:3306)/callcast?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE", 10),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN", 100),
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  envString("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: envString("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  envDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
			RefreshExpiry: envDuration("JWT_REFRESH_EXPIRY", 30*24*time.Hour),
			VerifyExpiry:  72 * time.Hour,
			ResetExpiry:   time.Hour,
			Issuer:        "callcast",
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", ""),
			Password: envString("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Mail: MailConfig{
			Host:      envString("SMTP_HOST", ""),
			Port:      envInt("SMTP_PORT", 465),
			Username:  envString("SMTP_USER", ""),
			Password:  envString("SMTP_PASS", ""),
			From:      envString("SMTP_SENDER", "no-reply@callcast.local"),
			SiteURL:   envString("SITE_URL", "http://localhost:8099"),
			ClientURL: envString("CLIENT_URL", "http://localhost:3000"),
		},
		Line: LineConfig{
			ChannelID:     envString("LINE_CLIENT_ID", ""),
			ChannelSecret: envString("LINE_CLIENT_SECRET", ""),
			RedirectURL:   envString("LINE_REDIRECT_URL", "http://localhost:3000/account/result"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: envString("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    envString("CLOUDINARY_API_KEY", ""),
			APISecret: envString("CLOUDINARY_API_SECRET", ""),
			Folder:    envString("CLOUDINARY_FOLDER", "callcast"),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: envString("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		},
		Payment: PaymentConfig{
			BaseURL:  envString("PAYMENT_BASE_URL", ""),
			APIKey:   envString("PAYMENT_API_KEY", ""),
			Currency: envString("PAYMENT_CURRENCY", "JPY"),
			Timeout:  30 * time.Second,
		},
		Calls: CallsConfig{
			CollectWindow:    envDuration("CALL_COLLECT_WINDOW", 15*time.Minute),
			TenLeftLead:      10 * time.Minute,
			NightStart:       "00:00",
			NightEnd:         "06:00",
			NightFund:        int64(envInt("CALL_NIGHT_FUND", 4000)),
			TimeZone:         envString("CALL_TIMEZONE", "Asia/Tokyo"),
			DefaultBackRatio: envInt("CALL_DEFAULT_BACK_RATIO", 70),
		},
		Scheduler: SchedulerConfig{
			CallControlSpec: envString("JOB_CALL_CONTROL", "@every 1m"),
			CallNotifySpec:  envString("JOB_CALL_NOTIFY", "@every 1m"),
			PresentSpec:     envString("JOB_PRESENT_CAST", "@every 5m"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
		},
	}
}

// Location resolves the calls time zone, falling back to UTC.
func (c CallsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
