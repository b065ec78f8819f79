package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// newFakeGoogle はトークンエンドポイントとuserinfoを模したサーバーを返す。
func newFakeGoogle(t *testing.T, tokenStatus int, tokenBody map[string]any, userinfoStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "auth-code" {
			t.Errorf("code = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tokenStatus)
		json.NewEncoder(w).Encode(tokenBody)
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-123" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userinfoStatus)
		if userinfoStatus != http.StatusOK {
			w.Write([]byte(`{"error":{"code":401,"message":"invalid credentials"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "google-sub-1",
			"email":   "alice@example.com",
			"name":    "Alice",
			"picture": "https://example.com/a.png",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *GoogleOAuthProvider {
	return NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoEndpoint: srv.URL + "/",
	})
}

func TestGoogleOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	p := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	raw := p.GetLoginURL("state-xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if !strings.HasPrefix(raw, "https://accounts.google.com/") {
		t.Errorf("login URL = %q, want google endpoint", raw)
	}

	q := u.Query()
	for key, want := range map[string]string{
		"client_id":     "client-id",
		"state":         "state-xyz",
		"access_type":   "offline",
		"prompt":        "consent",
		"response_type": "code",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if scope := q.Get("scope"); !strings.Contains(scope, "https://www.googleapis.com/auth/calendar.events") {
		t.Errorf("scope = %q, want calendar.events", scope)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusOK, map[string]any{
		"access_token":  "access-123",
		"refresh_token": "refresh-456",
		"token_type":    "Bearer",
		"expires_in":    3599,
		"scope":         "openid https://www.googleapis.com/auth/calendar.events",
	}, http.StatusOK)

	result, err := newTestProvider(srv).ExchangeCode(t.Context(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}

	if result.Email != "alice@example.com" || result.Name != "Alice" || result.ProviderUserID != "google-sub-1" {
		t.Errorf("user info = %+v", result)
	}
	if result.AvatarURL != "https://example.com/a.png" {
		t.Errorf("AvatarURL = %q", result.AvatarURL)
	}
	if result.Grant.AccessToken != "access-123" || result.Grant.RefreshToken != "refresh-456" {
		t.Errorf("grant tokens = %+v", result.Grant)
	}
	if result.Grant.ExpiresIn != 3599*time.Second {
		t.Errorf("ExpiresIn = %v, want 3599s", result.Grant.ExpiresIn)
	}
	if len(result.Grant.Scopes) != 2 {
		t.Errorf("Scopes = %v, want 2 granted scopes", result.Grant.Scopes)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_MissingScopeFallsBackToRequested(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusOK, map[string]any{
		"access_token": "access-123",
		"token_type":   "Bearer",
		"expires_in":   60,
	}, http.StatusOK)

	result, err := newTestProvider(srv).ExchangeCode(t.Context(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if len(result.Grant.Scopes) != len(DefaultScopes) {
		t.Errorf("Scopes = %v, want %v", result.Grant.Scopes, DefaultScopes)
	}
	if result.Grant.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty", result.Grant.RefreshToken)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusBadRequest, map[string]any{
		"error": "invalid_grant",
	}, http.StatusOK)

	if _, err := newTestProvider(srv).ExchangeCode(t.Context(), "auth-code"); err == nil {
		t.Fatal("expected error for rejected code")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UserInfoError(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusOK, map[string]any{
		"access_token": "access-123",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}, http.StatusUnauthorized)

	_, err := newTestProvider(srv).ExchangeCode(t.Context(), "auth-code")
	if err == nil {
		t.Fatal("expected error for userinfo failure")
	}
	if !strings.Contains(err.Error(), "user info") {
		t.Errorf("error = %v, want user info failure", err)
	}
}

func TestGoogleOAuthConfig_OAuth2Config_Defaults(t *testing.T) {
	cfg := GoogleOAuthConfig{ClientID: "id"}.OAuth2Config()

	if cfg.Endpoint.TokenURL != "https://oauth2.googleapis.com/token" {
		t.Errorf("TokenURL = %q", cfg.Endpoint.TokenURL)
	}
	if len(cfg.Scopes) != len(DefaultScopes) {
		t.Errorf("Scopes = %v", cfg.Scopes)
	}
}
