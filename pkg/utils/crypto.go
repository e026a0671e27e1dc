package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// cipherPrefix marks values produced by Encrypt. Values without it are
// treated as legacy plaintext.
const cipherPrefix = "enc:v1:"

var (
	ErrNotEncrypted      = errors.New("value is not encrypted")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// SecretBox seals short secrets such as access tokens with AES-256-GCM.
type SecretBox struct {
	aead cipher.AEAD
}

func NewSecretBox(secret string) (*SecretBox, error) {
	if secret == "" {
		return nil, errors.New("secret key is empty")
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &SecretBox{aead: aead}, nil
}

func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt returns ErrNotEncrypted for values that were never encrypted and
// ErrInvalidCiphertext for encrypted values that fail to open.
func (b *SecretBox) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, cipherPrefix) {
		return "", ErrNotEncrypted
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, cipherPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := b.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plaintext), nil
}
