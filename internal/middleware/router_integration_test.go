package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newProtectedRouter はサーバーと同じ順序でミドルウェアを積んだルーターを返す。
func newProtectedRouter(logger *slog.Logger, rl *RateLimiter) chi.Router {
	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCORSMiddleware("http://localhost:3000"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(tokenVerifier(map[string]string{"router-token": "user-router"}), "access_token"))
		r.Use(NewCSRFMiddleware(CSRFConfig{AllowedOrigin: "http://localhost:3000"}))
		r.Use(rl.GeneralMiddleware())
		r.Get("/api/conversations", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
		r.With(rl.ChatMiddleware()).Post("/chat/stream", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})
	return r
}

func TestRouterIntegration_ProtectedRoutes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rl := NewRateLimiter(testLimiterConfig(10, 1))
	defer rl.Stop()
	r := newProtectedRouter(logger, rl)

	t.Run("public_health", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if w.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("security headers should be applied to public routes")
		}
	})

	t.Run("GET_with_valid_cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "router-token"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["user_id"] != "user-router" {
			t.Errorf("user_id = %q, want user-router", body["user_id"])
		}
	})

	t.Run("GET_without_cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("chat_limit_applies_per_user", func(t *testing.T) {
		send := func() int {
			req := httptest.NewRequest(http.MethodPost, "/chat/stream", nil)
			req.AddCookie(&http.Cookie{Name: "access_token", Value: "router-token"})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			return w.Code
		}
		if code := send(); code != http.StatusOK {
			t.Fatalf("first chat status = %d, want 200", code)
		}
		if code := send(); code != http.StatusTooManyRequests {
			t.Errorf("second chat status = %d, want 429", code)
		}
	})

	t.Run("panic_is_recovered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "router-token"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/chat/stream", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})
}
