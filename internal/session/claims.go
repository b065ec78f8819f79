package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsScheme はsub・iat・expを持つHS256署名のJWT。新規発行の既定スキーム。
type ClaimsScheme struct {
	key []byte
	ttl time.Duration
}

// NewClaimsScheme はClaimsSchemeを生成する。
func NewClaimsScheme(secret string, ttl time.Duration) (*ClaimsScheme, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	return &ClaimsScheme{key: []byte(secret), ttl: ttl}, nil
}

// Name はスキーム名を返す。
func (s *ClaimsScheme) Name() string { return SchemeClaims }

// Issue はnowからttl後に失効するトークンを発行する。
func (s *ClaimsScheme) Issue(userID string, now time.Time) (string, error) {
	if userID == "" {
		return "", errEmptyUserID
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify は署名と有効期限を検証する。expを持たないトークンは拒否する。
func (s *ClaimsScheme) Verify(token string, now time.Time) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errBadSignature
		}
		return "", unauthenticated(s.Name(), err)
	}
	if claims.Subject == "" {
		return "", unauthenticated(s.Name(), errEmptyUserID)
	}
	return claims.Subject, nil
}

var _ Scheme = (*ClaimsScheme)(nil)
