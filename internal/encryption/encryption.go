// Package encryption protects opaque provider tokens persisted in the
// signature store. Signatures are provider-issued secrets; at-rest values go
// through AES-256-GCM when an encryption key is configured.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// kdfSalt is a fixed application salt for deriving the AES key from the
// configured passphrase. The passphrase itself is the secret; the salt only
// separates this application's derivation from others using the same key.
var kdfSalt = []byte("gemini-shim-signature-v1")

const kdfIterations = 100_000

// Service encrypts and decrypts small string payloads.
type Service interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	Hash(data string) string
}

// NewService returns an AES-GCM service when key is non-empty, otherwise a
// pass-through service so deployments without an encryption key keep working.
func NewService(key string) (Service, error) {
	if key == "" {
		return &noopService{}, nil
	}

	derived := pbkdf2.Key([]byte(key), kdfSalt, kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesService{gcm: gcm, hmacKey: derived}, nil
}

type aesService struct {
	gcm     cipher.AEAD
	hmacKey []byte
}

// Encrypt seals plaintext with a random nonce, returning hex(nonce||sealed).
func (s *aesService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or malformed input returns an error.
func (s *aesService) Decrypt(ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not valid hex: %w", err)
	}
	nonceSize := s.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := s.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}

// Hash returns a keyed hash of data, usable as a stable store key that does
// not reveal the conversation identifier it was built from.
func (s *aesService) Hash(data string) string {
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// noopService passes data through unchanged.
type noopService struct{}

func (n *noopService) Encrypt(plaintext string) (string, error) {
	return plaintext, nil
}

func (n *noopService) Decrypt(ciphertext string) (string, error) {
	return ciphertext, nil
}

func (n *noopService) Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
