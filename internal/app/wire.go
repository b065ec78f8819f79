package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/calendar-assistant/internal/auth"
	"github.com/hitoshi/calendar-assistant/internal/calendar"
	"github.com/hitoshi/calendar-assistant/internal/chat"
	"github.com/hitoshi/calendar-assistant/internal/config"
	"github.com/hitoshi/calendar-assistant/internal/credential"
	"github.com/hitoshi/calendar-assistant/internal/database"
	"github.com/hitoshi/calendar-assistant/internal/drafting"
	"github.com/hitoshi/calendar-assistant/internal/handler"
	"github.com/hitoshi/calendar-assistant/internal/intent"
	"github.com/hitoshi/calendar-assistant/internal/metrics"
	"github.com/hitoshi/calendar-assistant/internal/middleware"
	"github.com/hitoshi/calendar-assistant/internal/repository"
	"github.com/hitoshi/calendar-assistant/internal/security"
	"github.com/hitoshi/calendar-assistant/internal/session"
	"github.com/hitoshi/calendar-assistant/internal/user"
)

// server はAPIサーバーモードで組み立てた依存関係を保持する。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// close はバックグラウンドのgoroutineを停止する。
func (s *server) close() {
	s.rateLimiter.Stop()
}

// newTokenCodec はトークン暗号化鍵が設定されていればTokenCipherを返す。
// 未設定の場合はnilを返し、トークンは平文で保存される。
func newTokenCodec(cfg *config.Config) (repository.TokenCodec, error) {
	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY is not set; OAuth tokens are stored unencrypted")
		return nil, nil
	}
	cipher, err := security.NewTokenCipherFromBase64(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_ENCRYPTION_KEY: %w", err)
	}
	return cipher, nil
}

// newDrafter は外部モデルが設定されていればLLMDrafter、なければFallbackDrafterを返す。
func newDrafter(cfg *config.Config) (drafting.Drafter, error) {
	if !cfg.DraftingEnabled() {
		slog.Info("OPENAI_API_KEY is not set; using fallback drafter")
		return drafting.NewFallbackDrafter(cfg.FallbackStreamDelay), nil
	}
	m, err := drafting.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create drafting model: %w", err)
	}
	return drafting.NewLLMDrafter(m, cfg.DraftTemperature), nil
}

// newServer は全依存関係をワイヤリングし、ルーターを構築する。
func newServer(cfg *config.Config, db *sql.DB) (*server, error) {
	loc, err := time.LoadLocation(cfg.UserTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid USER_TIMEZONE: %w", err)
	}

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	codec, err := newTokenCodec(cfg)
	if err != nil {
		return nil, err
	}
	userRepo := repository.NewPostgresUserRepo(db)
	credRepo := repository.NewPostgresCredentialRepo(db, codec)
	convRepo := repository.NewPostgresConversationRepo(db)
	msgRepo := repository.NewPostgresMessageRepo(db)

	// 3. セッション
	verifier, err := session.NewVerifier(session.Options{
		Secret:      cfg.SessionSecret,
		MaxAge:      time.Duration(cfg.SessionMaxAge) * time.Second,
		IssueScheme: cfg.SessionScheme,
	}, userRepo)
	if err != nil {
		return nil, err
	}

	// 4. 資格情報とカレンダー
	oauthConfig := auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}
	credService := credential.NewService(credRepo, credential.NewOAuthRefresher(oauthConfig.OAuth2Config()), collector)

	sanitizer := security.NewTextSanitizer()
	gateway := calendar.NewGateway(cfg.CalendarPageSize,
		calendar.WithSanitizer(sanitizer),
		calendar.WithObserver(collector),
	)
	calendarService := calendar.NewService(credService, gateway)

	// 5. 対話
	drafter, err := newDrafter(cfg)
	if err != nil {
		return nil, err
	}
	chatService := chat.NewService(chat.Deps{
		Conversations: convRepo,
		Messages:      msgRepo,
		Intents:       intent.NewExtractor(loc, nil, sanitizer),
		Credentials:   credService,
		Calendar:      gateway,
		Drafter:       drafter,
		Observer:      collector,
	}, cfg.DraftHistoryLimit, cfg.UserTimezone)

	// 6. 認証とユーザー
	authService := auth.NewService(auth.NewGoogleOAuthProvider(oauthConfig), userRepo, credService, verifier)
	userService := user.NewService(userRepo)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitChat),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusObserver:    collector,
		TokenVerifier:     verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthCheck: func(ctx context.Context) error {
			return database.Ping(ctx, db, 2*time.Second)
		},
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			CookieName:    cfg.SessionCookieName,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ChatService:        chatService,
		StreamWriteTimeout: cfg.StreamWriteTimeout,

		CalendarService: calendarService,
		UserService:     userService,
	})

	return &server{handler: router, rateLimiter: rateLimiter}, nil
}
