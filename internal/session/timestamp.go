package session

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"
)

// timestampSalt は署名鍵導出に使う既定のsalt。
// 既存Cookieと互換にするため、鍵は sha1(salt + "signer" + secret) で導出する。
const timestampSalt = "itsdangerous.Signer"

// TimestampScheme は "value.timestamp.signature" 形式の署名付きトークン。
// timestampはUNIX秒のビッグエンディアン最小バイト列、signatureはHMAC-SHA1で、
// いずれもパディングなしURLセーフbase64で表す。
type TimestampScheme struct {
	key    []byte
	maxAge time.Duration
}

// NewTimestampScheme はTimestampSchemeを生成する。
func NewTimestampScheme(secret string, maxAge time.Duration) (*TimestampScheme, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	h := sha1.New()
	h.Write([]byte(timestampSalt))
	h.Write([]byte("signer"))
	h.Write([]byte(secret))
	return &TimestampScheme{key: h.Sum(nil), maxAge: maxAge}, nil
}

// Name はスキーム名を返す。
func (s *TimestampScheme) Name() string { return SchemeTimestamp }

// Issue はnow時点の署名付きトークンを発行する。
func (s *TimestampScheme) Issue(userID string, now time.Time) (string, error) {
	if userID == "" {
		return "", errEmptyUserID
	}
	value := userID + "." + encodeTimestamp(now.Unix())
	return value + "." + s.sign(value), nil
}

// Verify は署名と経過時間を検証する。
// 経過時間がmaxAgeを超える場合、または未来の時刻で署名されている場合は失敗する。
func (s *TimestampScheme) Verify(token string, now time.Time) (string, error) {
	sigIdx := strings.LastIndexByte(token, '.')
	if sigIdx <= 0 {
		return "", unauthenticated(s.Name(), errMalformed)
	}
	signed, sig := token[:sigIdx], token[sigIdx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.sign(signed))) {
		return "", unauthenticated(s.Name(), errBadSignature)
	}

	tsIdx := strings.LastIndexByte(signed, '.')
	if tsIdx <= 0 {
		return "", unauthenticated(s.Name(), errMalformed)
	}
	userID, rawTS := signed[:tsIdx], signed[tsIdx+1:]

	ts, ok := decodeTimestamp(rawTS)
	if !ok {
		return "", unauthenticated(s.Name(), errMalformed)
	}
	age := now.Unix() - ts
	if age < 0 || age > int64(s.maxAge/time.Second) {
		return "", unauthenticated(s.Name(), errExpired)
	}

	return userID, nil
}

func (s *TimestampScheme) sign(value string) string {
	mac := hmac.New(sha1.New, s.key)
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// encodeTimestamp は先頭のゼロバイトを除いたビッグエンディアン表現をbase64化する。
func encodeTimestamp(unix int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(unix))
	b := buf[:]
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeTimestamp(s string) (int64, bool) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) == 0 || len(b) > 8 {
		return 0, false
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return int64(binary.BigEndian.Uint64(buf[:])), true
}

var _ Scheme = (*TimestampScheme)(nil)
