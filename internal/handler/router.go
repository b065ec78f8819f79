package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calendar-assistant/internal/middleware"
)

// healthCheckTimeout はヘルスチェックの依存確認に使う時間の上限。
const healthCheckTimeout = 2 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusObserver    middleware.StatusObserver // nil可
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthCheck    func(ctx context.Context) error // nil可
	MetricsHandler http.Handler                    // nil可

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// チャット
	ChatService        ChatServiceInterface
	StreamWriteTimeout time.Duration

	// カレンダー
	CalendarService CalendarServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF → RateLimit(General) [→ RateLimit(Chat)]
//
// ヘルスチェック、メトリクス、OAuthフローはSessionの外に配置する。
// 発話をクエリで受け取るGET /chat/stream はGETでもCSRF検証を行う。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.StatusObserver != nil {
		r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	} else {
		r.Use(middleware.NewLoggingMiddleware(logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	chatHandler := NewChatHandler(deps.ChatService, deps.StreamWriteTimeout)
	eventsHandler := NewEventsHandler(deps.CalendarService)
	userHandler := NewUserHandler(deps.UserService)
	userHandler.onWithdraw = authHandler.clearSessionCookies

	csrf := middleware.NewCSRFMiddleware(middleware.CSRFConfig{AllowedOrigin: deps.CORSAllowedOrigin})
	streamCSRF := middleware.NewCSRFMiddleware(middleware.CSRFConfig{
		AllowedOrigin:    deps.CORSAllowedOrigin,
		CheckSafeMethods: true,
	})

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.With(csrf).Post("/logout", authHandler.Logout)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier, deps.AuthConfig.CookieName))
		r.Use(csrf)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)

		// チャット（送信専用のレート制限を追加）
		r.Route("/chat", func(r chi.Router) {
			r.Use(deps.RateLimiter.ChatMiddleware())
			r.Post("/", chatHandler.Send)
			r.With(streamCSRF).Get("/stream", chatHandler.Stream)
			r.Post("/stream", chatHandler.Stream)
		})

		// 会話履歴
		r.Route("/api/conversations", func(r chi.Router) {
			r.Get("/", chatHandler.ListConversations)
			r.Get("/{id}/messages", chatHandler.ListMessages)
		})

		// カレンダー
		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventsHandler.ListEvents)
			r.Post("/", eventsHandler.CreateEvent)
		})
		r.Delete("/api/calendar/connection", eventsHandler.Disconnect)

		// ユーザー管理
		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	return r
}

// healthHandler は依存先の疎通を確認し、失敗時は503を返す。
func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
