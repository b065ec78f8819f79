package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI はParamStoreが必要とするSSM APIの最小インターフェース。
// *ssm.Client がこれを満たす。
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretGetter はパラメータ名から値を取得する。
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ParamStore はAWS SSM Parameter Storeからシークレットを取得する。
type ParamStore struct {
	api ssmAPI
}

// NewParamStore はParamStoreを生成する。
func NewParamStore(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

// NewParamStoreFromEnv はAWSのデフォルト認証情報チェーンからParamStoreを生成する。
func NewParamStoreFromEnv(ctx context.Context) (*ParamStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("paramstore: load aws config: %w", err)
	}
	return NewParamStore(ssm.NewFromConfig(awsCfg))
}

// GetParameter は復号済みのパラメータ値を返す。
func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}

// secretParams はオーバーレイ対象のパラメータ名（prefixからの相対）と設定先。
func (c *Config) secretParams() map[string]*string {
	return map[string]*string{
		"google-client-secret": &c.GoogleClientSecret,
		"session-secret":       &c.SessionSecret,
		"token-encryption-key": &c.TokenEncryptionKey,
		"openai-api-key":       &c.OpenAIAPIKey,
	}
}

// OverlaySecrets はParameter Storeの値で未設定のシークレットを埋める。
// 環境変数で既に設定されている値は上書きしない。
// 取得できないパラメータはスキップし、最後にValidateで必須値を検証する。
func (c *Config) OverlaySecrets(ctx context.Context, getter SecretGetter) error {
	if c.ParamStorePrefix == "" || getter == nil {
		return c.Validate()
	}

	prefix := strings.TrimRight(c.ParamStorePrefix, "/")
	for name, dst := range c.secretParams() {
		if *dst != "" {
			continue
		}
		v, err := getter.GetParameter(ctx, prefix+"/"+name)
		if err != nil {
			continue
		}
		*dst = v
	}

	return c.Validate()
}
