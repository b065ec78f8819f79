package calendar

import (
	"context"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// CredentialSource はユーザーの有効な資格情報を返し、連携解除を行う。
type CredentialSource interface {
	GetValid(ctx context.Context, userID string) (*model.Credential, error)
	Disconnect(ctx context.Context, userID string) error
}

// Service はユーザーIDを起点にカレンダーを操作する。
// 資格情報の取得とリフレッシュはCredentialSourceに任せる。
type Service struct {
	creds   CredentialSource
	gateway *Gateway
}

// NewService はServiceを生成する。
func NewService(creds CredentialSource, gateway *Gateway) *Service {
	return &Service{creds: creds, gateway: gateway}
}

// ListEvents はユーザーのprimaryカレンダーから[timeMin, timeMax)の予定を返す。
func (s *Service) ListEvents(ctx context.Context, userID string, timeMin, timeMax time.Time, query string) ([]model.Event, error) {
	cred, err := s.creds.GetValid(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.ListEvents(ctx, cred, timeMin, timeMax, query)
}

// CreateEvent はユーザーのprimaryカレンダーに予定を作成する。
func (s *Service) CreateEvent(ctx context.Context, userID string, in model.EventInput) (*model.Event, error) {
	cred, err := s.creds.GetValid(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateEvent(ctx, cred, in)
}

// Disconnect はカレンダー連携を解除する。以後の操作はErrNotConnectedになる。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	return s.creds.Disconnect(ctx, userID)
}
