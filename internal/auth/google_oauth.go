package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/hitoshi/calendar-assistant/internal/credential"
	"github.com/hitoshi/calendar-assistant/internal/model"
)

// DefaultScopes はログイン時に要求するスコープ。
// カレンダーはイベントの読み書きのみを許可する。
var DefaultScopes = []string{
	"openid",
	googleoauth.UserinfoEmailScope,
	googleoauth.UserinfoProfileScope,
	gcal.CalendarEventsScope,
}

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// テスト用にオーバーライド可能なエンドポイント
	Endpoint         oauth2.Endpoint
	UserInfoEndpoint string
	HTTPClient       *http.Client
}

// OAuth2Config はログインとトークンリフレッシュで共有するoauth2.Configを返す。
func (c GoogleOAuthConfig) OAuth2Config() *oauth2.Config {
	endpoint := c.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
}

// GoogleOAuthProvider はGoogle OAuth 2.0による認証とカレンダー認可を提供する。
type GoogleOAuthProvider struct {
	config           *oauth2.Config
	userInfoEndpoint string
	httpClient       *http.Client
	now              func() time.Time
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{
		config:           config.OAuth2Config(),
		userInfoEndpoint: config.UserInfoEndpoint,
		httpClient:       config.HTTPClient,
		now:              time.Now,
	}
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
// リフレッシュトークンを得るためoffline + consentを指定する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthResult, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("empty access token in response")
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}
	if p.userInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.userInfoEndpoint))
	}
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("empty email in user info response")
	}

	return &OAuthResult{
		ProviderUserID: info.Id,
		Email:          info.Email,
		Name:           info.Name,
		AvatarURL:      info.Picture,
		Grant: credential.Grant{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresIn:    p.expiresIn(tok),
			Scopes:       grantedScopes(tok, p.config.Scopes),
		},
	}, nil
}

// expiresIn はプロバイダが返したexpires_inを優先し、無ければExpiryから逆算する。
func (p *GoogleOAuthProvider) expiresIn(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry.Sub(p.now())
	}
	return 0
}

// grantedScopes はトークン応答のscopeを返す。応答に無い場合は要求したスコープを使う。
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		return model.ParseScopes(s)
	}
	return append([]string(nil), requested...)
}

var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
