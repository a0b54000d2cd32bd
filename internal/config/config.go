package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// グローバル変数には置かず、必要なコンポーネントに参照で渡す。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	FacebookAppID       string
	FacebookAppSecret   string
	FacebookRedirectURL string
	FacebookTimeout     time.Duration

	// Session
	SessionSecret   string
	SessionMaxAge   int
	SessionCacheTTL time.Duration

	// プロフィール更新ポリシー: trueの場合、2回目以降のログインでも
	// IdPのプロフィールでname/email/photoを上書きする。
	RefreshProfileOnLogin bool

	// Photo fetch
	PhotoFetchTimeout time.Duration
	PhotoMaxSize      int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitEmail   int

	// Outbox
	OutboxInterval    time.Duration
	OutboxBatchSize   int
	OutboxMaxAttempts int

	// SMTP
	SMTPAddr string
	SMTPFrom string

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// 未認証リクエストのリダイレクト先
	SplashURL string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.FacebookAppID = os.Getenv("FACEBOOK_APP_ID")
	if cfg.FacebookAppID == "" {
		missing = append(missing, "FACEBOOK_APP_ID")
	}

	cfg.FacebookAppSecret = os.Getenv("FACEBOOK_SECRET")
	if cfg.FacebookAppSecret == "" {
		missing = append(missing, "FACEBOOK_SECRET")
	}

	cfg.FacebookRedirectURL = os.Getenv("FACEBOOK_CALLBACK_URL")
	if cfg.FacebookRedirectURL == "" {
		missing = append(missing, "FACEBOOK_CALLBACK_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FacebookTimeout = getEnvDuration("FACEBOOK_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCacheTTL = getEnvDuration("SESSION_CACHE_TTL", 60*time.Second)
	cfg.RefreshProfileOnLogin = getEnvBool("REFRESH_PROFILE_ON_LOGIN", false)
	cfg.PhotoFetchTimeout = getEnvDuration("PHOTO_FETCH_TIMEOUT", 5*time.Second)
	cfg.PhotoMaxSize = getEnvInt64("PHOTO_MAX_SIZE", 2097152)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitEmail = getEnvInt("RATE_LIMIT_EMAIL", 10)
	cfg.OutboxInterval = getEnvDuration("OUTBOX_INTERVAL", 30*time.Second)
	cfg.OutboxBatchSize = getEnvInt("OUTBOX_BATCH_SIZE", 20)
	cfg.OutboxMaxAttempts = getEnvInt("OUTBOX_MAX_ATTEMPTS", 5)
	cfg.SMTPAddr = getEnvString("SMTP_ADDR", "localhost:25")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "noreply@epulo.local")
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.SplashURL = getEnvString("SPLASH_URL", cfg.BaseURL+"/splash")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
