package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/calendar-assistant/internal/auth"
	"github.com/hitoshi/calendar-assistant/internal/middleware"
	"github.com/hitoshi/calendar-assistant/internal/model"
)

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		FrontendURL:   "http://localhost:3000/",
		CookieName:    "access_token",
		SessionMaxAge: 3600,
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Login_SetsStateAndRedirects(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Location"), "https://accounts.google.com/") {
		t.Errorf("Location = %q", resp.Header.Get("Location"))
	}
	c := findCookie(resp, oauthStateCookie)
	if c == nil {
		t.Fatal("oauth_state cookie not set")
	}
	if c.Value != gotState || len(c.Value) != 32 {
		t.Errorf("state cookie = %q, passed state = %q", c.Value, gotState)
	}
	if !c.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}
}

func callbackRequest(query, stateCookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: stateCookie})
	}
	return req
}

func TestAuthHandler_Callback_Success_SetsSessionCookie(t *testing.T) {
	var gotCode string
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*auth.LoginResult, error) {
			gotCode = code
			return &auth.LoginResult{User: &model.User{ID: "user-1"}, Token: "signed.jwt.token"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("code=abc&state=s1", "s1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", resp.StatusCode)
	}
	if gotCode != "abc" {
		t.Errorf("code = %q, want abc", gotCode)
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000/" {
		t.Errorf("Location = %q", loc)
	}
	c := findCookie(resp, "access_token")
	if c == nil || c.Value != "signed.jwt.token" {
		t.Fatalf("session cookie = %+v", c)
	}
	if c.MaxAge != 3600 || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attrs = %+v", c)
	}
}

func TestAuthHandler_Callback_SecureCookieUsesSameSiteNone(t *testing.T) {
	cfg := testAuthConfig()
	cfg.CookieSecure = true
	h := NewAuthHandler(&mockAuthService{}, cfg)

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("code=abc&state=s1", "s1"))

	c := findCookie(w.Result(), "access_token")
	if c == nil || !c.Secure || c.SameSite != http.SameSiteNoneMode {
		t.Errorf("cookie = %+v, want Secure SameSite=None", c)
	}
}

func TestAuthHandler_Callback_StateMismatch_Returns400(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"Cookie無し", "code=abc&state=s1", ""},
		{"不一致", "code=abc&state=s1", "s2"},
		{"state無し", "code=abc", "s1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				handleCallbackFn: func(ctx context.Context, code string) (*auth.LoginResult, error) {
					called = true
					return nil, nil
				},
			}
			h := NewAuthHandler(svc, testAuthConfig())

			w := httptest.NewRecorder()
			h.Callback(w, callbackRequest(tt.query, tt.cookie))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if called {
				t.Error("HandleCallback should not be called")
			}
		})
	}
}

func TestAuthHandler_Callback_ConsentDenied_RedirectsWithReason(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("error=access_denied&state=s1", "s1"))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", w.Code)
	}
	u, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if u.Query().Get("auth_error") != "access_denied" {
		t.Errorf("auth_error = %q", u.Query().Get("auth_error"))
	}
}

func TestAuthHandler_Callback_MissingCode_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("state=s1", "s1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthHandler_Callback_ServiceError_RedirectsLoginFailed(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*auth.LoginResult, error) {
			return nil, errors.New("exchange failed")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("code=abc&state=s1", "s1"))

	resp := w.Result()
	if !strings.Contains(resp.Header.Get("Location"), "auth_error=login_failed") {
		t.Errorf("Location = %q", resp.Header.Get("Location"))
	}
	if findCookie(resp, "access_token") != nil {
		t.Error("session cookie must not be set on failure")
	}
}

func TestAuthHandler_Logout_ClearsCookies(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	for _, name := range []string{"access_token", middleware.LegacySessionCookieName} {
		c := findCookie(resp, name)
		if c == nil || c.MaxAge >= 0 {
			t.Errorf("cookie %s not cleared: %+v", name, c)
		}
	}
}

func TestAuthHandler_Me(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	t.Run("認証済み", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, withUser(httptest.NewRequest(http.MethodGet, "/auth/me", nil), "user-1"))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var got map[string]any
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got["id"] != "user-1" || got["email"] != "user-1@example.com" {
			t.Errorf("me = %v", got)
		}
	})

	t.Run("未認証", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}
