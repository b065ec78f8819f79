package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrRefreshRejected はトークンエンドポイントがリフレッシュトークンを拒否したことを示す。
var ErrRefreshRejected = errors.New("refresh token rejected")

// RefreshResult はリフレッシュ結果を表す。
type RefreshResult struct {
	AccessToken string
	// RefreshToken はローテーションされた場合のみ設定される。
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher はリフレッシュトークンで新しいアクセストークンを取得する。
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// OAuthRefresher はoauth2.Configのrefresh_token grantでリフレッシュする。
type OAuthRefresher struct {
	config *oauth2.Config
	now    func() time.Time
}

// NewOAuthRefresher はOAuthRefresherを生成する。
func NewOAuthRefresher(config *oauth2.Config) *OAuthRefresher {
	return &OAuthRefresher{config: config, now: time.Now}
}

// Refresh はリフレッシュを実行する。
// 有効期限はプロバイダが今回返したexpires_inから計算する。
// 4xx応答はErrRefreshRejected、それ以外の失敗は通信エラーとして返す。
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			re.Response.StatusCode >= http.StatusBadRequest && re.Response.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %s", ErrRefreshRejected, rejectionReason(re))
		}
		return nil, fmt.Errorf("refresh token grant: %w", err)
	}

	expiresAt := tok.Expiry
	if tok.ExpiresIn > 0 {
		expiresAt = r.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	res := &RefreshResult{
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiresAt,
	}
	// 新しいリフレッシュトークンが返らない場合、TokenSourceは元の値を引き継ぐ
	if tok.RefreshToken != refreshToken {
		res.RefreshToken = tok.RefreshToken
	}
	return res, nil
}

func rejectionReason(re *oauth2.RetrieveError) string {
	if re.ErrorCode != "" {
		return re.ErrorCode
	}
	return re.Response.Status
}

var _ Refresher = (*OAuthRefresher)(nil)
