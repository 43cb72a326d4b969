// Package secret 負責註冊 API 時的 API Key 封裝
//
// 設定 SKILLBRIDGE_SECRET_KEY 時使用 AES-256-GCM；未設定時僅做 base64 混淆，
// 不提供任何機密性保證。
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	prefixGCM    = "gcm:"
	prefixBase64 = "b64:"
)

// ErrNoKey 表示遇到 gcm 密文但伺服器沒有設定金鑰
var ErrNoKey = errors.New("secret: sealed value requires SKILLBRIDGE_SECRET_KEY")

// Sealer 封裝與解封 API Key
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer 以伺服器金鑰建立 Sealer；key 為空字串時只做混淆
func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return &Sealer{}, nil
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Encrypting 回報是否為真正的加密模式
func (s *Sealer) Encrypting() bool {
	return s != nil && s.aead != nil
}

// Seal 將明文 API Key 轉為可儲存的字串；空字串原樣回傳
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if !s.Encrypting() {
		return prefixBase64 + base64.StdEncoding.EncodeToString([]byte(plain)), nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefixGCM + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 還原 Seal 的結果；沒有前綴的值視為舊版純 base64
func (s *Sealer) Open(stored string) (string, error) {
	switch {
	case stored == "":
		return "", nil
	case strings.HasPrefix(stored, prefixGCM):
		if !s.Encrypting() {
			return "", ErrNoKey
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefixGCM))
		if err != nil {
			return "", fmt.Errorf("secret: decode: %w", err)
		}
		ns := s.aead.NonceSize()
		if len(raw) < ns {
			return "", errors.New("secret: ciphertext too short")
		}
		plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
		if err != nil {
			return "", fmt.Errorf("secret: open: %w", err)
		}
		return string(plain), nil
	default:
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefixBase64))
		if err != nil {
			return "", fmt.Errorf("secret: decode: %w", err)
		}
		return string(raw), nil
	}
}
