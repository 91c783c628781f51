package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	"github.com/smallbiznis/songgift/internal/settings/domain"
	"golang.org/x/crypto/hkdf"
)

const envelopeVersion = 1

var (
	hkdfSalt = []byte("songgift/settings")
	hkdfInfo = []byte("settings-encryption-v1")
)

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// secretBox seals settings secrets with AES-256-GCM under an HKDF-derived key.
type secretBox struct {
	key []byte
}

func newSecretBox(secret string) (*secretBox, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &secretBox{}, nil
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), hkdfSalt, hkdfInfo), key); err != nil {
		return nil, err
	}
	return &secretBox{key: key}, nil
}

func (b *secretBox) enabled() bool {
	return b != nil && len(b.key) > 0
}

func (b *secretBox) seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if !b.enabled() {
		return "", domain.ErrEncryptionKeyMissing
	}
	gcm, err := b.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plain), nil)

	raw, err := json.Marshal(encryptedPayload{
		Version:    envelopeVersion,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *secretBox) open(sealed string) (string, error) {
	if strings.TrimSpace(sealed) == "" {
		return "", nil
	}
	if !b.enabled() {
		return "", domain.ErrEncryptionKeyMissing
	}

	var payload encryptedPayload
	if err := json.Unmarshal([]byte(sealed), &payload); err != nil {
		return "", domain.ErrInvalidCiphertext
	}
	if payload.Version != envelopeVersion {
		return "", domain.ErrInvalidCiphertext
	}
	nonce, err := base64.RawStdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return "", domain.ErrInvalidCiphertext
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return "", domain.ErrInvalidCiphertext
	}

	gcm, err := b.aead()
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", domain.ErrInvalidCiphertext
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", domain.ErrInvalidCiphertext
	}
	return string(plain), nil
}

func (b *secretBox) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
