// Package vault implements C1 CryptoVault: symmetric authenticated
// encryption of credential fields stored at rest (password, client id,
// refresh token), with tolerant decryption so legacy plaintext rows keep
// working until migrated.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize    = 32 // AES-256
	nonceSize  = 12 // GCM standard nonce
	prefix     = "v1:"
	hkdfInfo   = "mailhouse:credential-vault:v1"
	defaultEnv = "mailhouse_default_secret"
)

// Vault encrypts and decrypts credential strings with a single symmetric
// key resolved once at construction.
type Vault struct {
	key []byte
}

// New resolves the encryption key from ENCRYPTION_KEY (raw key, base64
// standard or URL encoded, must decode to 32 bytes) or, if unset, derives
// one via HKDF-SHA256 from JWT_SECRET_KEY (falling back to a fixed
// development secret so the service still starts in local/dev use).
func New() (*Vault, error) {
	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		key, err := decodeKey(raw)
		if err != nil {
			return nil, fmt.Errorf("vault: invalid ENCRYPTION_KEY: %w", err)
		}
		return &Vault{key: key}, nil
	}

	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		secret = defaultEnv
	}
	return NewFromSecret(secret), nil
}

// NewFromSecret derives a vault key from an arbitrary secret via
// HKDF-SHA256. New uses it for the JWT_SECRET_KEY fallback; it is also
// exposed directly for tests.
func NewFromSecret(secret string) *Vault {
	key := make([]byte, keySize)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	// hkdf.New never fails to produce keySize bytes for SHA256 (max output
	// is 255*32 bytes), so the read error is not reachable in practice.
	if _, err := io.ReadFull(reader, key); err != nil {
		panic(fmt.Sprintf("vault: hkdf derivation failed: %v", err))
	}
	return &Vault{key: key}
}

func decodeKey(raw string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(raw); err == nil && len(key) == keySize {
			return key, nil
		}
	}
	if len(raw) == keySize {
		return []byte(raw), nil
	}
	return nil, errors.New("key must decode to 32 bytes")
}

// Encrypt returns "" for "" (credential fields are often optional) and
// otherwise the prefixed, base64url-encoded AES-256-GCM sealed ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: new gcm: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt is tolerant: any input that is not recognizable ciphertext
// (missing prefix, bad base64, failed GCM open) is returned unchanged.
// This allows in-place migration from legacy plaintext columns.
func (v *Vault) Decrypt(ciphertext string) string {
	if ciphertext == "" || !v.IsEncrypted(ciphertext) {
		return ciphertext
	}
	sealed, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(ciphertext, prefix))
	if err != nil || len(sealed) < nonceSize {
		return ciphertext
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return ciphertext
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ciphertext
	}
	nonce, body := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return ciphertext
	}
	return string(plaintext)
}

// IsEncrypted reports whether s carries the stable ciphertext prefix.
func (v *Vault) IsEncrypted(s string) bool {
	return strings.HasPrefix(s, prefix)
}

// EncryptIfPlain encrypts s unless it is already ciphertext, matching the
// MessageStore write-path rule in spec §4.2.
func (v *Vault) EncryptIfPlain(s string) (string, error) {
	if s == "" || v.IsEncrypted(s) {
		return s, nil
	}
	return v.Encrypt(s)
}
