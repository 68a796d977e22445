package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var encryptionKey []byte

// pbkdf2Salt is fixed: the derived key must be stable across restarts so
// previously stored ciphertexts stay readable.
var pbkdf2Salt = []byte("ecocero-2fa-secret-storage")

// ConfigureEncryption derives the AES-256 key used for secret-at-rest
// encryption from the configured secret. An empty secret leaves encryption
// unconfigured and values are stored as plaintext.
func ConfigureEncryption(secret string) {
	if secret == "" {
		encryptionKey = nil
		return
	}
	encryptionKey = pbkdf2.Key([]byte(secret), pbkdf2Salt, 4096, 32, sha256.New)
}

// EncryptAESGCM encrypts plaintext and returns base64(nonce || ciphertext).
// With no key configured the plaintext is returned unchanged.
func EncryptAESGCM(plaintext string) (string, error) {
	if encryptionKey == nil {
		return plaintext, nil
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptAESGCM reverses EncryptAESGCM.
func DecryptAESGCM(encoded string) (string, error) {
	if encryptionKey == nil {
		return encoded, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptOrPlaintext decrypts a stored value, falling back to treating it
// as plaintext for rows written before encryption was configured.
func DecryptOrPlaintext(stored string) string {
	decrypted, err := DecryptAESGCM(stored)
	if err != nil {
		return stored
	}
	return decrypted
}
