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
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret     string
	SessionMaxAge     int    // 秒
	SessionScheme     string // "jwt"（既定）または "timestamp"
	SessionCookieName string

	// Token encryption（base64。空の場合は暗号化しない）
	TokenEncryptionKey string

	// Drafting
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	DraftTemperature    float64
	DraftHistoryLimit   int
	FallbackStreamDelay time.Duration

	// Calendar
	UserTimezone     string
	CalendarPageSize int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitChat    int

	// Retention
	ConversationRetentionDays int

	// Server
	ServerPort         string
	BaseURL            string
	StreamWriteTimeout time.Duration

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Frontend（ログイン完了後のリダイレクト先）
	FrontendURL string

	// Parameter Store（空の場合は使用しない）
	ParamStorePrefix string
}

// DraftingEnabled は外部の返信生成機能が設定されているかを返す。
func (c *Config) DraftingEnabled() bool {
	return c.OpenAIAPIKey != ""
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

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.ParamStorePrefix = getEnvString("PARAM_STORE_PREFIX", "")

	// Parameter Storeを使う場合、シークレットは後からオーバーレイされるため必須チェックしない
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" && cfg.ParamStorePrefix == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" && cfg.ParamStorePrefix == "" {
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
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 60*60*24*30)
	cfg.SessionScheme = getEnvString("SESSION_SCHEME", "jwt")
	cfg.SessionCookieName = getEnvString("SESSION_COOKIE_NAME", "access_token")
	cfg.TokenEncryptionKey = getEnvString("TOKEN_ENCRYPTION_KEY", "")
	cfg.OpenAIAPIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.DraftTemperature = getEnvFloat("DRAFT_TEMPERATURE", 0.3)
	cfg.DraftHistoryLimit = getEnvInt("DRAFT_HISTORY_LIMIT", 20)
	cfg.FallbackStreamDelay = getEnvDuration("FALLBACK_STREAM_DELAY", 20*time.Millisecond)
	cfg.UserTimezone = getEnvString("USER_TIMEZONE", "Australia/Sydney")
	cfg.CalendarPageSize = getEnvInt("CALENDAR_PAGE_SIZE", 50)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 20)
	cfg.ConversationRetentionDays = getEnvInt("CONVERSATION_RETENTION_DAYS", 0)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.StreamWriteTimeout = getEnvDuration("STREAM_WRITE_TIMEOUT", 2*time.Minute)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", cfg.CORSAllowedOrigin)

	if cfg.SessionScheme != "jwt" && cfg.SessionScheme != "timestamp" {
		return nil, fmt.Errorf("SESSION_SCHEME must be \"jwt\" or \"timestamp\", got %q", cfg.SessionScheme)
	}

	if _, err := time.LoadLocation(cfg.UserTimezone); err != nil {
		return nil, fmt.Errorf("invalid USER_TIMEZONE %q: %w", cfg.UserTimezone, err)
	}

	return cfg, nil
}

// Validate はシークレットのオーバーレイ後に必須値が揃っていることを検証する。
func (c *Config) Validate() error {
	var missing []string
	if c.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required secrets are not set: %v", missing)
	}
	return nil
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
