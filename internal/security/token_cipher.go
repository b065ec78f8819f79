package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// tokenKeyInfo はHKDFのinfo。用途ごとに鍵を分離する。
var tokenKeyInfo = []byte("calendar-assistant oauth token v1")

// TokenCipher はOAuthトークンを保存時に暗号化する。
// XChaCha20-Poly1305でランダムnonceを先頭に付与し、base64（RawURL）で文字列化する。
type TokenCipher struct {
	key []byte
}

// NewTokenCipher はマスターキーからHKDF-SHA256でトークン用の鍵を導出する。
// masterKeyは16バイト以上であること。
func NewTokenCipher(masterKey []byte) (*TokenCipher, error) {
	if len(masterKey) < 16 {
		return nil, errors.New("token cipher: master key must be at least 16 bytes")
	}
	r := hkdf.New(sha256.New, masterKey, nil, tokenKeyInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("token cipher: derive key: %w", err)
	}
	return &TokenCipher{key: key}, nil
}

// NewTokenCipherFromBase64 はbase64エンコードされたマスターキーからTokenCipherを生成する。
func NewTokenCipherFromBase64(encoded string) (*TokenCipher, error) {
	masterKey, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("token cipher: decode master key: %w", err)
	}
	return NewTokenCipher(masterKey)
}

// Seal は平文を暗号化する。空文字列は空文字列のまま返す。
func (c *TokenCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token cipher: nonce: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open はSealの出力を復号する。
func (c *TokenCipher) Open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	blob, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("token cipher: decode: %w", err)
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return "", errors.New("token cipher: ciphertext too short")
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("token cipher: open: %w", err)
	}
	return string(pt), nil
}
